package resolver

import (
	"context"
	"errors"
	"fmt"

	"github.com/harrissondutra/fitOS-sub014/internal/models"
	"github.com/harrissondutra/fitOS-sub014/pkg/database"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	setLocalSearchPathSQL   = `SELECT set_config('search_path', $1, true)`
	setSessionSearchPathSQL = `SELECT set_config('search_path', $1, false)`
	resetSearchPathSQL      = `RESET search_path`
)

// ErrAcquireUnsupported is returned by Acquire when the handle was built on a
// database that cannot hand out dedicated connections.
var ErrAcquireUnsupported = errors.New("database does not support acquiring connections")

// Acquirer hands out dedicated pool connections. *pgxpool.Pool satisfies it.
type Acquirer interface {
	Acquire(ctx context.Context) (*pgxpool.Conn, error)
}

// ScopedHandle is a database handle bound to one tenant schema. Unqualified
// table names used through it resolve inside that schema only.
type ScopedHandle struct {
	db     database.DB
	tenant models.Tenant
	schema string
}

func newScopedHandle(db database.DB, tenant *models.Tenant) *ScopedHandle {
	return &ScopedHandle{db: db, tenant: *tenant, schema: *tenant.SchemaName}
}

func (h *ScopedHandle) Schema() string { return h.schema }

// Tenant returns a copy of the registry row the handle was resolved from.
func (h *ScopedHandle) Tenant() models.Tenant { return h.tenant }

// Table returns the schema-qualified, quoted name of a tenant table.
func (h *ScopedHandle) Table(name string) string {
	return database.QuoteIdent(h.schema, name)
}

// WithTx runs fn in a transaction whose search_path is the tenant schema.
// The setting is transaction-local, so the pooled connection is clean again
// once the transaction ends.
func (h *ScopedHandle) WithTx(ctx context.Context, fn func(ctx context.Context, tx pgx.Tx) error) error {
	return database.WithTx(ctx, h.db, func(ctx context.Context, tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, setLocalSearchPathSQL, database.QuoteIdent(h.schema)); err != nil {
			return fmt.Errorf("set search_path for tenant %s: %w", h.tenant.ID, err)
		}
		return fn(ctx, tx)
	})
}

// Acquire checks out a dedicated connection with its session search_path set
// to the tenant schema. The caller must Release it.
func (h *ScopedHandle) Acquire(ctx context.Context) (*ScopedConn, error) {
	acq, ok := h.db.(Acquirer)
	if !ok {
		return nil, ErrAcquireUnsupported
	}

	conn, err := acq.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection for tenant %s: %w", h.tenant.ID, err)
	}
	if _, err := conn.Exec(ctx, setSessionSearchPathSQL, database.QuoteIdent(h.schema)); err != nil {
		conn.Release()
		return nil, fmt.Errorf("set search_path for tenant %s: %w", h.tenant.ID, err)
	}
	return &ScopedConn{Conn: conn}, nil
}

// ScopedConn is a pool connection pinned to a tenant schema.
type ScopedConn struct {
	*pgxpool.Conn
}

// Release resets the search_path before returning the connection to the
// pool. A connection that cannot be reset is closed instead.
func (c *ScopedConn) Release() {
	if c.Conn == nil {
		return
	}
	conn := c.Conn
	c.Conn = nil

	if _, err := conn.Exec(context.Background(), resetSearchPathSQL); err != nil {
		raw := conn.Hijack()
		_ = raw.Close(context.Background())
		return
	}
	conn.Release()
}
