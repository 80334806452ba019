package schema

import (
	"fmt"
	"strings"

	"github.com/harrissondutra/fitOS-sub014/pkg/database"
)

func CreateSchemaSQL(schemaName string) string {
	return "CREATE SCHEMA IF NOT EXISTS " + database.QuoteIdent(schemaName)
}

// CreateTableSQL renders the table inside schemaName. Foreign keys always
// point at tables of the same schema.
func (t TableDefinition) CreateTableSQL(schemaName string) string {
	var lines []string
	for _, c := range t.Columns {
		line := "\t" + database.QuoteIdent(c.Name) + " " + c.Type
		if c.NotNull || c.Name == t.PrimaryKey {
			line += " NOT NULL"
		}
		if c.Default != "" {
			line += " DEFAULT " + c.Default
		}
		lines = append(lines, line)
	}
	lines = append(lines, "\tPRIMARY KEY ("+database.QuoteIdent(t.PrimaryKey)+")")
	for _, c := range t.Columns {
		if c.References == "" {
			continue
		}
		lines = append(lines, fmt.Sprintf("\tFOREIGN KEY (%s) REFERENCES %s (%s) ON DELETE %s",
			database.QuoteIdent(c.Name),
			database.QuoteIdent(schemaName, c.References),
			database.QuoteIdent(c.refColumn),
			c.OnDelete,
		))
	}

	return "CREATE TABLE IF NOT EXISTS " + database.QuoteIdent(schemaName, t.Name) + " (\n" +
		strings.Join(lines, ",\n") + "\n)"
}

func (ix Index) CreateIndexSQL(schemaName, table string) string {
	cols := make([]string, len(ix.Columns))
	for i, c := range ix.Columns {
		cols[i] = database.QuoteIdent(c)
	}
	kind := "INDEX"
	if ix.Unique {
		kind = "UNIQUE INDEX"
	}
	return fmt.Sprintf("CREATE %s IF NOT EXISTS %s ON %s (%s)",
		kind, database.QuoteIdent(ix.Name), database.QuoteIdent(schemaName, table), strings.Join(cols, ", "))
}

// SelectSQL reads one keyset page of a tenant's rows from the legacy table.
// Parameters: $1 tenant id, then either $2 limit, or $2 cursor and $3 limit.
func (t TableDefinition) SelectSQL(legacySchema string, withCursor bool) string {
	exprs := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		expr := database.QuoteIdent(c.SourceName())
		if c.NotNull && c.Default != "" {
			expr = "COALESCE(" + expr + ", " + c.Default + ")"
		}
		if c.opaque() {
			expr += "::text"
		}
		exprs[i] = expr
	}

	pk := database.QuoteIdent(t.sourcePrimaryKey())
	where := database.QuoteIdent(t.TenantColumn) + " = $1"
	limit := "$2"
	if withCursor {
		where += " AND " + pk + " > $2"
		limit = "$3"
	}

	return fmt.Sprintf("SELECT %s FROM %s WHERE %s ORDER BY %s LIMIT %s",
		strings.Join(exprs, ", "), database.QuoteIdent(legacySchema, t.SourceName()), where, pk, limit)
}

// UpsertSQL inserts one row keyed by primary key, overwriting every non-key
// column on conflict so a rerun converges on the source values.
func (t TableDefinition) UpsertSQL(schemaName string) string {
	cols := make([]string, len(t.Columns))
	params := make([]string, len(t.Columns))
	var updates []string
	for i, c := range t.Columns {
		q := database.QuoteIdent(c.Name)
		cols[i] = q
		params[i] = fmt.Sprintf("$%d", i+1)
		if c.opaque() {
			params[i] += "::" + c.castType()
		}
		if c.Name != t.PrimaryKey {
			updates = append(updates, q+" = EXCLUDED."+q)
		}
	}

	conflict := "DO NOTHING"
	if len(updates) > 0 {
		conflict = "DO UPDATE SET " + strings.Join(updates, ", ")
	}

	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) ON CONFLICT (%s) %s",
		database.QuoteIdent(schemaName, t.Name), strings.Join(cols, ", "), strings.Join(params, ", "),
		database.QuoteIdent(t.PrimaryKey), conflict)
}

func (t TableDefinition) CountSourceSQL(legacySchema string) string {
	return fmt.Sprintf("SELECT count(*) FROM %s WHERE %s = $1",
		database.QuoteIdent(legacySchema, t.SourceName()), database.QuoteIdent(t.TenantColumn))
}

func (t TableDefinition) CountDestinationSQL(schemaName string) string {
	return "SELECT count(*) FROM " + database.QuoteIdent(schemaName, t.Name)
}

func (t TableDefinition) sourcePrimaryKey() string {
	return t.Columns[t.primaryKeyIndex()].SourceName()
}

// PrimaryKeyIndex is the position of the primary key in Columns and in every
// row returned by SelectSQL.
func (t TableDefinition) PrimaryKeyIndex() int {
	return t.primaryKeyIndex()
}
