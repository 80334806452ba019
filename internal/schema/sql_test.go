package schema

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func smallSet(t *testing.T) *TableDefinitionSet {
	t.Helper()
	s, err := NewTableDefinitionSet(
		TableDefinition{
			Name: "users",
			Columns: []Column{
				id(),
				{Name: "email", Type: "TEXT", NotNull: true},
				{Name: "created_at", Source: "createdAt", Type: "TIMESTAMPTZ", NotNull: true, Default: "NOW()"},
			},
			Indexes: []Index{{Name: "users_email_key", Columns: []string{"email"}, Unique: true}},
		},
		TableDefinition{
			Name: "members",
			Columns: []Column{
				id(),
				ref("user_id", "userId", "users"),
				{Name: "preferences", Type: "JSONB"},
				{Name: "weight_kg", Source: "weightKg", Type: "NUMERIC(6,2)"},
			},
			Indexes: []Index{{Name: "members_user_id_idx", Columns: []string{"user_id"}}},
		},
	)
	require.NoError(t, err)
	return s
}

func TestCreateSchemaSQL(t *testing.T) {
	assert.Equal(t, `CREATE SCHEMA IF NOT EXISTS "tenant_t1"`, CreateSchemaSQL("tenant_t1"))
	assert.Equal(t, `CREATE SCHEMA IF NOT EXISTS "a""b"`, CreateSchemaSQL(`a"b`))
}

func TestCreateTableSQL(t *testing.T) {
	members, _ := smallSet(t).Table("members")
	sql := members.CreateTableSQL("tenant_t1")

	assert.True(t, strings.HasPrefix(sql, `CREATE TABLE IF NOT EXISTS "tenant_t1"."members" (`))
	assert.Contains(t, sql, `"id" TEXT NOT NULL`)
	assert.Contains(t, sql, `PRIMARY KEY ("id")`)
	assert.Contains(t, sql, `FOREIGN KEY ("user_id") REFERENCES "tenant_t1"."users" ("id") ON DELETE CASCADE`)
	assert.NotContains(t, sql, "public")
}

func TestCreateIndexSQL(t *testing.T) {
	users, _ := smallSet(t).Table("users")
	sql := users.Indexes[0].CreateIndexSQL("tenant_t1", users.Name)
	assert.Equal(t, `CREATE UNIQUE INDEX IF NOT EXISTS "users_email_key" ON "tenant_t1"."users" ("email")`, sql)

	members, _ := smallSet(t).Table("members")
	sql = members.Indexes[0].CreateIndexSQL("tenant_t1", members.Name)
	assert.Equal(t, `CREATE INDEX IF NOT EXISTS "members_user_id_idx" ON "tenant_t1"."members" ("user_id")`, sql)
}

func TestSelectSQL(t *testing.T) {
	users, _ := smallSet(t).Table("users")
	assert.Equal(t,
		`SELECT "id", "email", COALESCE("createdAt", NOW()) FROM "public"."users" WHERE "tenant_id" = $1 ORDER BY "id" LIMIT $2`,
		users.SelectSQL("public", false))

	members, _ := smallSet(t).Table("members")
	assert.Equal(t,
		`SELECT "id", "userId", "preferences"::text, "weightKg"::text FROM "public"."members" WHERE "tenant_id" = $1 AND "id" > $2 ORDER BY "id" LIMIT $3`,
		members.SelectSQL("public", true))
}

func TestUpsertSQL(t *testing.T) {
	members, _ := smallSet(t).Table("members")
	assert.Equal(t,
		`INSERT INTO "tenant_t1"."members" ("id", "user_id", "preferences", "weight_kg") VALUES ($1, $2, $3::jsonb, $4::numeric) `+
			`ON CONFLICT ("id") DO UPDATE SET "user_id" = EXCLUDED."user_id", "preferences" = EXCLUDED."preferences", "weight_kg" = EXCLUDED."weight_kg"`,
		members.UpsertSQL("tenant_t1"))

	only, err := NewTableDefinitionSet(TableDefinition{Name: "tags", Columns: []Column{id()}})
	require.NoError(t, err)
	tags, _ := only.Table("tags")
	assert.Equal(t, `INSERT INTO "tenant_t1"."tags" ("id") VALUES ($1) ON CONFLICT ("id") DO NOTHING`, tags.UpsertSQL("tenant_t1"))
}

func TestCountSQL(t *testing.T) {
	users, _ := smallSet(t).Table("users")
	assert.Equal(t, `SELECT count(*) FROM "public"."users" WHERE "tenant_id" = $1`, users.CountSourceSQL("public"))
	assert.Equal(t, `SELECT count(*) FROM "tenant_t1"."users"`, users.CountDestinationSQL("tenant_t1"))
}
