package models

// Column type tags reported in ColumnMeta.Type.
const (
	ColumnTypeVarchar   = "varchar"
	ColumnTypeInteger   = "integer"
	ColumnTypeBigint    = "bigint"
	ColumnTypeReal      = "real"
	ColumnTypeDecimal   = "decimal"
	ColumnTypeBoolean   = "boolean"
	ColumnTypeTimestamp = "timestamp"
	ColumnTypeJSON      = "json"
	ColumnTypeBlob      = "blob"
	ColumnTypeEnum      = "enum"
)

// Default value markers for generated columns.
const (
	DefaultAutoincrement = "autoincrement"
	DefaultNow           = "now()"
	DefaultUUID          = "uuid()"
	DefaultCUID          = "cuid()"
)

// RelationType distinguishes the two directions of a foreign key.
type RelationType string

const (
	RelationBelongsTo RelationType = "belongsTo"
	RelationHasMany   RelationType = "hasMany"
)

// ForeignKeyRef points at the column a foreign key references.
type ForeignKeyRef struct {
	Table  string `json:"table" yaml:"table"`
	Column string `json:"column" yaml:"column"`
}

// ColumnMeta describes one column of an introspected table.
type ColumnMeta struct {
	Name         string         `json:"name" yaml:"name"`
	Type         string         `json:"type" yaml:"type"`
	Nullable     bool           `json:"nullable" yaml:"nullable"`
	PrimaryKey   bool           `json:"primaryKey" yaml:"primaryKey"`
	DefaultValue any            `json:"defaultValue,omitempty" yaml:"defaultValue,omitempty"`
	ForeignKey   *ForeignKeyRef `json:"foreignKey,omitempty" yaml:"foreignKey,omitempty"`
	EnumValues   []string       `json:"enumValues,omitempty" yaml:"enumValues,omitempty"`
}

// IsInteger reports whether values of the column are whole numbers.
func (c *ColumnMeta) IsInteger() bool {
	return c.Type == ColumnTypeInteger || c.Type == ColumnTypeBigint
}

// Relation links a table to another through a foreign key.
//
// For belongsTo, LocalField is the foreign key column on this table and
// ForeignField the referenced column on Table. For hasMany, LocalField is the
// referenced column on this table and ForeignField the foreign key column on Table.
type Relation struct {
	Type         RelationType `json:"type" yaml:"type"`
	Table        string       `json:"table" yaml:"table"`
	LocalField   string       `json:"localField" yaml:"localField"`
	ForeignField string       `json:"foreignField" yaml:"foreignField"`
}

// TableMeta is the introspected shape of a table. It is derived from the
// database and never edited by hand.
type TableMeta struct {
	Name      string       `json:"name" yaml:"name"`
	Columns   []ColumnMeta `json:"columns" yaml:"columns"`
	Relations []Relation   `json:"relations" yaml:"relations"`
}

// Column returns the named column.
func (t *TableMeta) Column(name string) (*ColumnMeta, bool) {
	for i := range t.Columns {
		if t.Columns[i].Name == name {
			return &t.Columns[i], true
		}
	}
	return nil, false
}

// PrimaryKey returns the first column flagged as primary key, or "id".
func (t *TableMeta) PrimaryKey() string {
	for _, c := range t.Columns {
		if c.PrimaryKey {
			return c.Name
		}
	}
	return "id"
}

// FindTable returns the table with the exact given name.
func FindTable(tables []TableMeta, name string) (*TableMeta, bool) {
	for i := range tables {
		if tables[i].Name == name {
			return &tables[i], true
		}
	}
	return nil, false
}
