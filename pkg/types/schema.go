package types

import (
	"sort"
	"strings"
)

// TimeColumn is the mandatory per-row simulation time column every
// journal data table carries.
const TimeColumn = "s_time"

// ColumnInfo describes one physical column and its logical attribute.
type ColumnInfo struct {
	PhysicalName  string
	AttributeName string
	DataType      string
}

// TableInfo describes one journal data table: its physical name, the
// logical object name it maps to, and its column metadata indexed both
// by physical column name and by attribute name. Both indices are
// case-insensitive.
type TableInfo struct {
	PhysicalName string
	ObjectName   string
	byPhysical   map[string]*ColumnInfo
	byAttribute  map[string]*ColumnInfo
}

// NewTableInfo creates an empty table description.
func NewTableInfo(physicalName, objectName string) *TableInfo {
	return &TableInfo{
		PhysicalName: physicalName,
		ObjectName:   objectName,
		byPhysical:   make(map[string]*ColumnInfo),
		byAttribute:  make(map[string]*ColumnInfo),
	}
}

// AddColumn registers a column under both indices.
func (t *TableInfo) AddColumn(col ColumnInfo) {
	c := &col
	t.byPhysical[strings.ToLower(col.PhysicalName)] = c
	t.byAttribute[strings.ToLower(col.AttributeName)] = c
}

// ColumnByPhysical looks up a column by its physical name.
func (t *TableInfo) ColumnByPhysical(name string) (*ColumnInfo, bool) {
	c, ok := t.byPhysical[strings.ToLower(name)]
	return c, ok
}

// ColumnByAttribute looks up a column by its logical attribute name.
func (t *TableInfo) ColumnByAttribute(name string) (*ColumnInfo, bool) {
	c, ok := t.byAttribute[strings.ToLower(name)]
	return c, ok
}

// AttributeFor translates a physical column name into its attribute
// name, falling back to the physical name when the column carries no
// metadata.
func (t *TableInfo) AttributeFor(physicalName string) string {
	if c, ok := t.ColumnByPhysical(physicalName); ok && c.AttributeName != "" {
		return c.AttributeName
	}
	return physicalName
}

// ColumnCount returns the number of metadata columns (s_time excluded,
// since the time column never appears in the journal's column metadata).
func (t *TableInfo) ColumnCount() int { return len(t.byPhysical) }

// Columns returns the column metadata sorted by physical name.
func (t *TableInfo) Columns() []*ColumnInfo {
	out := make([]*ColumnInfo, 0, len(t.byPhysical))
	for _, c := range t.byPhysical {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PhysicalName < out[j].PhysicalName })
	return out
}

// Schema is the in-memory description of a journal's data tables,
// indexed case-insensitively by physical table name and by logical
// object name. Physical names are unique across the schema.
type Schema struct {
	byPhysical map[string]*TableInfo
	byObject   map[string]*TableInfo
}

// NewSchema creates an empty schema.
func NewSchema() *Schema {
	return &Schema{
		byPhysical: make(map[string]*TableInfo),
		byObject:   make(map[string]*TableInfo),
	}
}

// AddTable registers a table under both indices. A duplicate physical
// name replaces the prior entry.
func (s *Schema) AddTable(t *TableInfo) {
	s.byPhysical[strings.ToLower(t.PhysicalName)] = t
	s.byObject[strings.ToLower(t.ObjectName)] = t
}

// TableByPhysical looks up a table by physical name.
func (s *Schema) TableByPhysical(name string) (*TableInfo, bool) {
	t, ok := s.byPhysical[strings.ToLower(name)]
	return t, ok
}

// TableByObject looks up a table by logical object name.
func (s *Schema) TableByObject(name string) (*TableInfo, bool) {
	t, ok := s.byObject[strings.ToLower(name)]
	return t, ok
}

// HasTable reports whether a physical table is part of the schema.
func (s *Schema) HasTable(physicalName string) bool {
	_, ok := s.TableByPhysical(physicalName)
	return ok
}

// Len returns the number of tables in the schema.
func (s *Schema) Len() int { return len(s.byPhysical) }

// Tables returns the table descriptions sorted by physical name.
func (s *Schema) Tables() []*TableInfo {
	out := make([]*TableInfo, 0, len(s.byPhysical))
	for _, t := range s.byPhysical {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PhysicalName < out[j].PhysicalName })
	return out
}
