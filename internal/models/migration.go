package models

import (
	"fmt"
	"time"

	"github.com/harrissondutra/fitOS-sub014/internal/common"
)

// Phase is the position of one tenant in the migration state machine.
type Phase string

const (
	PhaseUnmigrated     Phase = "unmigrated"
	PhaseSchemaCreating Phase = "schema_creating"
	PhaseTablesCreating Phase = "tables_creating"
	PhaseDataMigrating  Phase = "data_migrating"
	PhaseValidating     Phase = "validating"
	PhaseMigrated       Phase = "migrated"
	PhaseFailed         Phase = "failed"
	PhaseSkipped        Phase = "skipped"
)

var phaseNext = map[Phase]Phase{
	PhaseUnmigrated:     PhaseSchemaCreating,
	PhaseSchemaCreating: PhaseTablesCreating,
	PhaseTablesCreating: PhaseDataMigrating,
	PhaseDataMigrating:  PhaseValidating,
	PhaseValidating:     PhaseMigrated,
}

func (p Phase) Terminal() bool {
	return p == PhaseMigrated || p == PhaseFailed || p == PhaseSkipped
}

// MigrationRecord tracks one tenant through a single orchestration run.
type MigrationRecord struct {
	RunID       string            `json:"run_id"`
	TenantID    string            `json:"tenant_id"`
	TenantName  string            `json:"tenant_name"`
	SchemaName  string            `json:"schema_name,omitempty"`
	Phase       Phase             `json:"phase"`
	FailedPhase Phase             `json:"failed_phase,omitempty"`
	Error       string            `json:"error,omitempty"`
	Migration   *MigrationReport  `json:"migration,omitempty"`
	Validation  *ValidationReport `json:"validation,omitempty"`
	StartedAt   time.Time         `json:"started_at"`
	FinishedAt  time.Time         `json:"finished_at"`

	err error
}

func NewMigrationRecord(runID string, tenant *Tenant) *MigrationRecord {
	return &MigrationRecord{
		RunID:      runID,
		TenantID:   tenant.ID,
		TenantName: tenant.Name,
		Phase:      PhaseUnmigrated,
		StartedAt:  time.Now().UTC(),
	}
}

// Advance moves the record to the next phase. Only the forward edge of the
// state machine is accepted.
func (r *MigrationRecord) Advance(next Phase) error {
	want, ok := phaseNext[r.Phase]
	if !ok || want != next {
		return fmt.Errorf("illegal migration transition %s -> %s", r.Phase, next)
	}
	r.Phase = next
	if next == PhaseMigrated {
		r.FinishedAt = time.Now().UTC()
	}
	return nil
}

// Fail moves a non-terminal record to PhaseFailed, remembering where it stopped.
func (r *MigrationRecord) Fail(err error) error {
	if r.Phase.Terminal() {
		return fmt.Errorf("illegal migration transition %s -> %s", r.Phase, PhaseFailed)
	}
	r.FailedPhase = r.Phase
	r.Phase = PhaseFailed
	r.err = err
	if err != nil {
		r.Error = err.Error()
	}
	r.FinishedAt = time.Now().UTC()
	return nil
}

// Skip marks a tenant that needed no work in this run.
func (r *MigrationRecord) Skip(reason string) error {
	if r.Phase != PhaseUnmigrated {
		return fmt.Errorf("illegal migration transition %s -> %s", r.Phase, PhaseSkipped)
	}
	r.Phase = PhaseSkipped
	r.Error = reason
	r.FinishedAt = time.Now().UTC()
	return nil
}

// Err returns the original error for a failed record.
func (r *MigrationRecord) Err() error {
	return r.err
}

func (r *MigrationRecord) Duration() time.Duration {
	if r.FinishedAt.IsZero() {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

// TableMigration holds per-table counters produced by the data migrator.
type TableMigration struct {
	Table       string `json:"table"`
	RowsRead    int64  `json:"rows_read"`
	RowsWritten int64  `json:"rows_written"`
	RowsSkipped int64  `json:"rows_skipped"`
	Batches     int    `json:"batches"`
}

// RowError is a single row the migrator could not write.
type RowError struct {
	Table   string `json:"table"`
	RowID   string `json:"row_id"`
	Code    string `json:"code,omitempty"`
	Message string `json:"message"`
}

type MigrationReport struct {
	TenantID   string           `json:"tenant_id"`
	SchemaName string           `json:"schema_name"`
	Tables     []TableMigration `json:"tables"`
	Errors     []RowError       `json:"errors,omitempty"`
}

func (r *MigrationReport) Totals() (read, written, skipped int64) {
	for _, t := range r.Tables {
		read += t.RowsRead
		written += t.RowsWritten
		skipped += t.RowsSkipped
	}
	return read, written, skipped
}

// TableCount compares one table between the shared source and the tenant schema.
type TableCount struct {
	Table       string `json:"table"`
	Source      int64  `json:"source"`
	Destination int64  `json:"destination"`
}

func (c TableCount) Match() bool {
	return c.Source == c.Destination
}

type ValidationReport struct {
	TenantID        string       `json:"tenant_id"`
	SchemaName      string       `json:"schema_name"`
	SchemaExists    bool         `json:"schema_exists"`
	ExpectedTables  int          `json:"expected_tables"`
	FoundTables     int          `json:"found_tables"`
	ExpectedIndexes int          `json:"expected_indexes"`
	FoundIndexes    int          `json:"found_indexes"`
	Tables          []TableCount `json:"tables"`
	Mismatches      []string     `json:"mismatches,omitempty"`
}

func (r *ValidationReport) OK() bool {
	return len(r.Mismatches) == 0
}

// Err returns a *common.ValidationError when the report has mismatches.
func (r *ValidationReport) Err() error {
	if r.OK() {
		return nil
	}
	return &common.ValidationError{TenantID: r.TenantID, Mismatches: r.Mismatches}
}

// RunSummary aggregates one orchestration run.
type RunSummary struct {
	RunID      string             `json:"run_id"`
	StartedAt  time.Time          `json:"started_at"`
	FinishedAt time.Time          `json:"finished_at"`
	Records    []*MigrationRecord `json:"records"`
	Migrated   int                `json:"migrated"`
	Failed     int                `json:"failed"`
	Skipped    int                `json:"skipped"`
	NotStarted int                `json:"not_started"`
	Cancelled  bool               `json:"cancelled"`
}

// Tally recomputes the aggregate counters from the records.
func (s *RunSummary) Tally() {
	s.Migrated, s.Failed, s.Skipped = 0, 0, 0
	for _, r := range s.Records {
		switch r.Phase {
		case PhaseMigrated:
			s.Migrated++
		case PhaseFailed:
			s.Failed++
		case PhaseSkipped:
			s.Skipped++
		}
	}
}

func (s *RunSummary) HasFailures() bool {
	return s.Failed > 0
}
