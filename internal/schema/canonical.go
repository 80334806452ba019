package schema

// Table names of the canonical per-tenant set, in dependency order.
const (
	TableUsers            = "users"
	TableMembers          = "members"
	TableWorkouts         = "workouts"
	TableAISessions       = "ai_sessions"
	TableBiometricData    = "biometric_data"
	TableChurnPredictions = "churn_predictions"
	TableChatMessages     = "chat_messages"
	TableRefreshTokens    = "refresh_tokens"
)

func id() Column {
	return Column{Name: "id", Type: "TEXT", NotNull: true}
}

func ref(name, source, table string) Column {
	return Column{Name: name, Source: source, Type: "TEXT", NotNull: true, References: table}
}

func timestamps() []Column {
	return []Column{
		{Name: "created_at", Source: "createdAt", Type: "TIMESTAMPTZ", NotNull: true, Default: "NOW()"},
		{Name: "updated_at", Source: "updatedAt", Type: "TIMESTAMPTZ", NotNull: true, Default: "NOW()"},
	}
}

func cols(c ...Column) []Column {
	return append(c, timestamps()...)
}

var canonical = MustTableDefinitionSet(
	TableDefinition{
		Name: TableUsers,
		Columns: cols(
			id(),
			Column{Name: "email", Type: "TEXT", NotNull: true},
			Column{Name: "password_hash", Source: "passwordHash", Type: "TEXT"},
			Column{Name: "name", Type: "TEXT"},
			Column{Name: "role", Type: "TEXT", NotNull: true, Default: "'member'"},
			Column{Name: "avatar_url", Source: "avatarUrl", Type: "TEXT"},
			Column{Name: "is_active", Source: "isActive", Type: "BOOLEAN", NotNull: true, Default: "TRUE"},
			Column{Name: "last_login_at", Source: "lastLoginAt", Type: "TIMESTAMPTZ"},
		),
		Indexes: []Index{
			{Name: "users_email_key", Columns: []string{"email"}, Unique: true},
		},
	},
	TableDefinition{
		Name: TableMembers,
		Columns: cols(
			id(),
			ref("user_id", "userId", TableUsers),
			Column{Name: "phone", Type: "TEXT"},
			Column{Name: "birth_date", Source: "birthDate", Type: "DATE"},
			Column{Name: "gender", Type: "TEXT"},
			Column{Name: "height_cm", Source: "heightCm", Type: "NUMERIC(5,2)"},
			Column{Name: "weight_kg", Source: "weightKg", Type: "NUMERIC(6,2)"},
			Column{Name: "fitness_goal", Source: "fitnessGoal", Type: "TEXT"},
			Column{Name: "membership_type", Source: "membershipType", Type: "TEXT"},
			Column{Name: "membership_status", Source: "membershipStatus", Type: "TEXT", NotNull: true, Default: "'active'"},
			Column{Name: "join_date", Source: "joinDate", Type: "TIMESTAMPTZ"},
			Column{Name: "preferences", Type: "JSONB"},
		),
		Indexes: []Index{
			{Name: "members_user_id_key", Columns: []string{"user_id"}, Unique: true},
			{Name: "members_membership_status_idx", Columns: []string{"membership_status"}},
		},
	},
	TableDefinition{
		Name: TableWorkouts,
		Columns: cols(
			id(),
			ref("member_id", "memberId", TableMembers),
			ref("user_id", "userId", TableUsers),
			Column{Name: "title", Type: "TEXT", NotNull: true},
			Column{Name: "workout_type", Source: "workoutType", Type: "TEXT"},
			Column{Name: "duration_minutes", Source: "durationMinutes", Type: "INTEGER"},
			Column{Name: "calories_burned", Source: "caloriesBurned", Type: "INTEGER"},
			Column{Name: "exercises", Type: "JSONB"},
			Column{Name: "notes", Type: "TEXT"},
			Column{Name: "scheduled_at", Source: "scheduledAt", Type: "TIMESTAMPTZ"},
			Column{Name: "completed_at", Source: "completedAt", Type: "TIMESTAMPTZ"},
		),
		Indexes: []Index{
			{Name: "workouts_member_id_idx", Columns: []string{"member_id"}},
			{Name: "workouts_user_id_idx", Columns: []string{"user_id"}},
			{Name: "workouts_scheduled_at_idx", Columns: []string{"scheduled_at"}},
		},
	},
	TableDefinition{
		Name: TableAISessions,
		Columns: cols(
			id(),
			ref("user_id", "userId", TableUsers),
			Column{Name: "session_type", Source: "sessionType", Type: "TEXT", NotNull: true, Default: "'chat'"},
			Column{Name: "prompt", Type: "TEXT"},
			Column{Name: "response", Type: "TEXT"},
			Column{Name: "model", Type: "TEXT"},
			Column{Name: "tokens_used", Source: "tokensUsed", Type: "INTEGER"},
			Column{Name: "metadata", Type: "JSONB"},
		),
		Indexes: []Index{
			{Name: "ai_sessions_user_id_idx", Columns: []string{"user_id"}},
		},
	},
	TableDefinition{
		Name: TableBiometricData,
		Columns: cols(
			id(),
			ref("member_id", "memberId", TableMembers),
			Column{Name: "heart_rate", Source: "heartRate", Type: "INTEGER"},
			Column{Name: "blood_pressure", Source: "bloodPressure", Type: "TEXT"},
			Column{Name: "body_fat_pct", Source: "bodyFatPct", Type: "NUMERIC(5,2)"},
			Column{Name: "muscle_mass_kg", Source: "muscleMassKg", Type: "NUMERIC(6,2)"},
			Column{Name: "sleep_hours", Source: "sleepHours", Type: "NUMERIC(4,2)"},
			Column{Name: "steps", Type: "INTEGER"},
			Column{Name: "source", Type: "TEXT"},
			Column{Name: "raw", Type: "JSONB"},
			Column{Name: "recorded_at", Source: "recordedAt", Type: "TIMESTAMPTZ", NotNull: true, Default: "NOW()"},
		),
		Indexes: []Index{
			{Name: "biometric_data_member_id_recorded_at_idx", Columns: []string{"member_id", "recorded_at"}},
		},
	},
	TableDefinition{
		Name: TableChurnPredictions,
		Columns: cols(
			id(),
			ref("member_id", "memberId", TableMembers),
			Column{Name: "risk_score", Source: "riskScore", Type: "NUMERIC(5,4)", NotNull: true},
			Column{Name: "risk_level", Source: "riskLevel", Type: "TEXT"},
			Column{Name: "factors", Type: "JSONB"},
			Column{Name: "recommendations", Type: "JSONB"},
			Column{Name: "model_version", Source: "modelVersion", Type: "TEXT"},
			Column{Name: "predicted_at", Source: "predictedAt", Type: "TIMESTAMPTZ", NotNull: true, Default: "NOW()"},
		),
		Indexes: []Index{
			{Name: "churn_predictions_member_id_idx", Columns: []string{"member_id"}},
			{Name: "churn_predictions_risk_level_idx", Columns: []string{"risk_level"}},
		},
	},
	TableDefinition{
		Name: TableChatMessages,
		Columns: cols(
			id(),
			ref("user_id", "userId", TableUsers),
			Column{Name: "conversation_id", Source: "conversationId", Type: "TEXT"},
			Column{Name: "role", Type: "TEXT", NotNull: true},
			Column{Name: "content", Type: "TEXT", NotNull: true},
			Column{Name: "metadata", Type: "JSONB"},
		),
		Indexes: []Index{
			{Name: "chat_messages_user_id_created_at_idx", Columns: []string{"user_id", "created_at"}},
			{Name: "chat_messages_conversation_id_idx", Columns: []string{"conversation_id"}},
		},
	},
	TableDefinition{
		Name: TableRefreshTokens,
		Columns: cols(
			id(),
			ref("user_id", "userId", TableUsers),
			Column{Name: "token", Type: "TEXT", NotNull: true},
			Column{Name: "expires_at", Source: "expiresAt", Type: "TIMESTAMPTZ", NotNull: true},
			Column{Name: "revoked_at", Source: "revokedAt", Type: "TIMESTAMPTZ"},
		),
		Indexes: []Index{
			{Name: "refresh_tokens_token_key", Columns: []string{"token"}, Unique: true},
			{Name: "refresh_tokens_user_id_idx", Columns: []string{"user_id"}},
		},
	},
)

// Canonical returns the fixed per-tenant table set used by every tenant schema.
func Canonical() *TableDefinitionSet {
	return canonical
}
