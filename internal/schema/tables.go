package schema

import (
	"fmt"
	"regexp"
	"strings"
)

const (
	DefaultTenantColumn = "tenant_id"
	DefaultPrimaryKey   = "id"
)

var (
	destIdent   = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)
	sourceIdent = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)
)

// Column describes one per-tenant column and where it comes from in the
// legacy shared table.
type Column struct {
	Name       string
	Source     string // legacy column name, defaults to Name
	Type       string
	NotNull    bool
	Default    string // SQL expression
	References string // parent table in the same schema
	OnDelete   string // defaults to CASCADE when References is set

	refColumn string
}

func (c Column) SourceName() string {
	if c.Source != "" {
		return c.Source
	}
	return c.Name
}

// opaque columns travel as text so the migrator never decodes their payload.
func (c Column) opaque() bool {
	t := strings.ToUpper(strings.TrimSpace(c.Type))
	return strings.HasPrefix(t, "JSON") || strings.HasPrefix(t, "NUMERIC") || strings.HasPrefix(t, "DECIMAL")
}

func (c Column) castType() string {
	t := strings.ToLower(strings.TrimSpace(c.Type))
	if i := strings.IndexByte(t, '('); i > 0 {
		t = t[:i]
	}
	return t
}

type Index struct {
	Name    string
	Columns []string
	Unique  bool
}

type TableDefinition struct {
	Name         string
	Source       string // legacy table name, defaults to Name
	TenantColumn string // defaults to DefaultTenantColumn
	PrimaryKey   string // defaults to DefaultPrimaryKey
	Columns      []Column
	Indexes      []Index
}

func (t TableDefinition) SourceName() string {
	if t.Source != "" {
		return t.Source
	}
	return t.Name
}

// Parents returns the distinct tables this one references, excluding itself.
func (t TableDefinition) Parents() []string {
	var parents []string
	seen := map[string]bool{}
	for _, c := range t.Columns {
		if c.References == "" || c.References == t.Name || seen[c.References] {
			continue
		}
		seen[c.References] = true
		parents = append(parents, c.References)
	}
	return parents
}

func (t TableDefinition) primaryKeyIndex() int {
	for i, c := range t.Columns {
		if c.Name == t.PrimaryKey {
			return i
		}
	}
	return -1
}

// TableDefinitionSet is an immutable, dependency-ordered list of tables:
// every table appears after all tables it references.
type TableDefinitionSet struct {
	tables []TableDefinition
	byName map[string]int
}

// NewTableDefinitionSet validates the definitions and orders them so parents
// precede children. Declared order is kept wherever dependencies allow.
func NewTableDefinitionSet(defs ...TableDefinition) (*TableDefinitionSet, error) {
	if len(defs) == 0 {
		return nil, fmt.Errorf("table definition set is empty")
	}

	declared := make(map[string]*TableDefinition, len(defs))
	normalized := make([]TableDefinition, len(defs))
	indexNames := map[string]string{}

	for i, d := range defs {
		d = normalize(d)
		if err := validateTable(d); err != nil {
			return nil, err
		}
		if _, dup := declared[d.Name]; dup {
			return nil, fmt.Errorf("table %s declared twice", d.Name)
		}
		for _, ix := range d.Indexes {
			if owner, dup := indexNames[ix.Name]; dup {
				return nil, fmt.Errorf("index %s declared on both %s and %s", ix.Name, owner, d.Name)
			}
			indexNames[ix.Name] = d.Name
		}
		normalized[i] = d
		declared[d.Name] = &normalized[i]
	}

	for i := range normalized {
		t := &normalized[i]
		for j := range t.Columns {
			ref := t.Columns[j].References
			if ref == "" {
				continue
			}
			parent, ok := declared[ref]
			if !ok {
				return nil, fmt.Errorf("table %s column %s references unknown table %s", t.Name, t.Columns[j].Name, ref)
			}
			t.Columns[j].refColumn = parent.PrimaryKey
		}
	}

	ordered, err := topoSort(normalized)
	if err != nil {
		return nil, err
	}

	s := &TableDefinitionSet{tables: ordered, byName: make(map[string]int, len(ordered))}
	for i, t := range ordered {
		s.byName[t.Name] = i
	}
	return s, nil
}

func MustTableDefinitionSet(defs ...TableDefinition) *TableDefinitionSet {
	s, err := NewTableDefinitionSet(defs...)
	if err != nil {
		panic(err)
	}
	return s
}

// topoSort emits, at each step, the first declared table whose parents have
// all been emitted.
func topoSort(defs []TableDefinition) ([]TableDefinition, error) {
	emitted := make(map[string]bool, len(defs))
	out := make([]TableDefinition, 0, len(defs))

	for len(out) < len(defs) {
		progressed := false
		for _, d := range defs {
			if emitted[d.Name] {
				continue
			}
			ready := true
			for _, p := range d.Parents() {
				if !emitted[p] {
					ready = false
					break
				}
			}
			if ready {
				emitted[d.Name] = true
				out = append(out, d)
				progressed = true
				break
			}
		}
		if !progressed {
			var pending []string
			for _, d := range defs {
				if !emitted[d.Name] {
					pending = append(pending, d.Name)
				}
			}
			return nil, fmt.Errorf("foreign key cycle between tables %s", strings.Join(pending, ", "))
		}
	}
	return out, nil
}

func normalize(d TableDefinition) TableDefinition {
	if d.TenantColumn == "" {
		d.TenantColumn = DefaultTenantColumn
	}
	if d.PrimaryKey == "" {
		d.PrimaryKey = DefaultPrimaryKey
	}
	cols := make([]Column, len(d.Columns))
	copy(cols, d.Columns)
	for i := range cols {
		if cols[i].References != "" && cols[i].OnDelete == "" {
			cols[i].OnDelete = "CASCADE"
		}
	}
	d.Columns = cols
	ixs := make([]Index, len(d.Indexes))
	copy(ixs, d.Indexes)
	d.Indexes = ixs
	return d
}

func validateTable(d TableDefinition) error {
	if !destIdent.MatchString(d.Name) {
		return fmt.Errorf("invalid table name %q", d.Name)
	}
	if !sourceIdent.MatchString(d.SourceName()) {
		return fmt.Errorf("table %s: invalid source table name %q", d.Name, d.SourceName())
	}
	if !sourceIdent.MatchString(d.TenantColumn) {
		return fmt.Errorf("table %s: invalid tenant column %q", d.Name, d.TenantColumn)
	}
	if len(d.Columns) == 0 {
		return fmt.Errorf("table %s has no columns", d.Name)
	}

	names := map[string]bool{}
	for _, c := range d.Columns {
		if !destIdent.MatchString(c.Name) {
			return fmt.Errorf("table %s: invalid column name %q", d.Name, c.Name)
		}
		if !sourceIdent.MatchString(c.SourceName()) {
			return fmt.Errorf("table %s: invalid source column name %q", d.Name, c.SourceName())
		}
		if strings.TrimSpace(c.Type) == "" {
			return fmt.Errorf("table %s column %s has no type", d.Name, c.Name)
		}
		if names[c.Name] {
			return fmt.Errorf("table %s: column %s declared twice", d.Name, c.Name)
		}
		names[c.Name] = true
	}
	if d.primaryKeyIndex() < 0 {
		return fmt.Errorf("table %s: primary key %s is not a column", d.Name, d.PrimaryKey)
	}

	for _, ix := range d.Indexes {
		if !destIdent.MatchString(ix.Name) || len(ix.Name) > MaxIdentifierLength {
			return fmt.Errorf("table %s: invalid index name %q", d.Name, ix.Name)
		}
		if len(ix.Columns) == 0 {
			return fmt.Errorf("table %s: index %s has no columns", d.Name, ix.Name)
		}
		for _, col := range ix.Columns {
			if !names[col] {
				return fmt.Errorf("table %s: index %s uses unknown column %s", d.Name, ix.Name, col)
			}
		}
	}
	return nil
}

// Tables returns the definitions in dependency order.
func (s *TableDefinitionSet) Tables() []TableDefinition {
	out := make([]TableDefinition, len(s.tables))
	copy(out, s.tables)
	return out
}

func (s *TableDefinitionSet) Table(name string) (TableDefinition, bool) {
	i, ok := s.byName[name]
	if !ok {
		return TableDefinition{}, false
	}
	return s.tables[i], true
}

func (s *TableDefinitionSet) Len() int {
	return len(s.tables)
}

func (s *TableDefinitionSet) Names() []string {
	names := make([]string, len(s.tables))
	for i, t := range s.tables {
		names[i] = t.Name
	}
	return names
}

func (s *TableDefinitionSet) IndexNames() []string {
	var names []string
	for _, t := range s.tables {
		for _, ix := range t.Indexes {
			names = append(names, ix.Name)
		}
	}
	return names
}
