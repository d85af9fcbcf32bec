package prismaschema

import (
	"strings"

	"github.com/ekaya-inc/ekaya-studio/pkg/models"
)

var scalarTypes = map[string]string{
	"String":   models.ColumnTypeVarchar,
	"Int":      models.ColumnTypeInteger,
	"BigInt":   models.ColumnTypeBigint,
	"Float":    models.ColumnTypeReal,
	"Decimal":  models.ColumnTypeDecimal,
	"Boolean":  models.ColumnTypeBoolean,
	"DateTime": models.ColumnTypeTimestamp,
	"Json":     models.ColumnTypeJSON,
	"Bytes":    models.ColumnTypeBlob,
}

// IsScalar reports whether typeName is a built-in scalar or an enum of s.
func (s *Schema) IsScalar(typeName string) bool {
	if _, ok := scalarTypes[typeName]; ok {
		return true
	}
	if typeName == "Unsupported" {
		return true
	}
	_, ok := s.Enum(typeName)
	return ok
}

// ColumnType maps a Prisma field type to a column type tag. Unknown types
// are lower-cased.
func (s *Schema) ColumnType(typeName string) string {
	if t, ok := scalarTypes[typeName]; ok {
		return t
	}
	if _, ok := s.Enum(typeName); ok {
		return models.ColumnTypeEnum
	}
	return strings.ToLower(typeName)
}

// TableMetas converts every non-ignored model into table metadata using
// database names throughout.
func (s *Schema) TableMetas() []models.TableMeta {
	tables := make([]models.TableMeta, 0, len(s.Models))

	for i := range s.Models {
		model := &s.Models[i]
		if model.Ignored {
			continue
		}

		table := models.TableMeta{
			Name:      model.DBName,
			Columns:   []models.ColumnMeta{},
			Relations: []models.Relation{},
		}
		compositePK := make(map[string]bool, len(model.PrimaryKey))
		for _, name := range model.PrimaryKey {
			compositePK[name] = true
		}

		for _, field := range model.Fields {
			if field.Ignored || !s.IsScalar(field.Type) {
				continue
			}
			col := models.ColumnMeta{
				Name:       field.DBName,
				Type:       s.ColumnType(field.Type),
				Nullable:   field.IsOptional,
				PrimaryKey: field.IsID || compositePK[field.Name],
			}
			if field.Default != nil {
				col.DefaultValue = defaultValue(field.Default)
			}
			if enum, ok := s.Enum(field.Type); ok {
				col.EnumValues = append([]string(nil), enum.Values...)
			}
			table.Columns = append(table.Columns, col)
		}

		for _, field := range model.Fields {
			if field.Ignored || s.IsScalar(field.Type) {
				continue
			}
			target, ok := s.Model(field.Type)
			if !ok || target.Ignored {
				continue
			}

			if field.Relation != nil && len(field.Relation.Fields) > 0 {
				s.addOwningRelation(&table, model, target, &field)
				continue
			}
			if field.IsList {
				if rel, ok := s.backRelation(model, target, &field); ok {
					table.Relations = append(table.Relations, rel)
				}
			}
		}

		tables = append(tables, table)
	}

	return tables
}

// addOwningRelation handles a field carrying @relation(fields: ...).
func (s *Schema) addOwningRelation(table *models.TableMeta, model, target *Model, field *Field) {
	rel := field.Relation
	for i, local := range rel.Fields {
		ref := "id"
		if i < len(rel.References) {
			ref = rel.References[i]
		}
		if col, ok := table.Column(model.FieldDBName(local)); ok {
			col.ForeignKey = &models.ForeignKeyRef{
				Table:  target.DBName,
				Column: target.FieldDBName(ref),
			}
		}
	}

	ref := "id"
	if len(rel.References) > 0 {
		ref = rel.References[0]
	}
	kind := models.RelationBelongsTo
	if field.IsList {
		kind = models.RelationHasMany
	}
	table.Relations = append(table.Relations, models.Relation{
		Type:         kind,
		Table:        target.DBName,
		LocalField:   model.FieldDBName(rel.Fields[0]),
		ForeignField: target.FieldDBName(ref),
	})
}

// backRelation resolves a list field without fields: against the owning side
// in target, matching on relation name when one is given.
func (s *Schema) backRelation(model, target *Model, field *Field) (models.Relation, bool) {
	name := ""
	if field.Relation != nil {
		name = field.Relation.Name
	}

	for _, other := range target.Fields {
		if other.Type != model.Name || other.Relation == nil || len(other.Relation.Fields) == 0 {
			continue
		}
		if other.Relation.Name != name {
			continue
		}
		ref := "id"
		if len(other.Relation.References) > 0 {
			ref = other.Relation.References[0]
		}
		return models.Relation{
			Type:         models.RelationHasMany,
			Table:        target.DBName,
			LocalField:   model.FieldDBName(ref),
			ForeignField: target.FieldDBName(other.Relation.Fields[0]),
		}, true
	}
	return models.Relation{}, false
}

func defaultValue(d *Default) any {
	switch d.Func {
	case "":
		return d.Value
	case "autoincrement", "sequence":
		return models.DefaultAutoincrement
	case "now":
		return models.DefaultNow
	case "uuid":
		return models.DefaultUUID
	case "cuid":
		return models.DefaultCUID
	default:
		// dbgenerated(...) and friends are database-side expressions
		return nil
	}
}
