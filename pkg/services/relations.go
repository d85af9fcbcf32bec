package services

import (
	"context"
	"fmt"
	"strings"

	sq "github.com/Masterminds/squirrel"

	"github.com/ekaya-inc/ekaya-studio/pkg/models"
)

// relationChunkSize caps the number of values in one IN list.
const relationChunkSize = 500

// relationLoader expands the relations of a page of rows. It issues one
// query per relation (per chunk of values), never one per row.
type relationLoader struct {
	t *recordTarget
}

func newRelationLoader(t *recordTarget) *relationLoader {
	return &relationLoader{t: t}
}

// belongsToLink is a foreign key column on the loaded table.
type belongsToLink struct {
	column string
	target *models.TableMeta
	ref    string
	key    string
}

// hasManyLink is a column on another table that references the loaded table.
type hasManyLink struct {
	source *models.TableMeta
	column string
	ref    string
	key    string
}

// Load nests related records into rows in place.
//
// belongsTo matches are stored under the foreign key column name without its
// "_id" suffix (the target table name when there is no such suffix), or nil
// when nothing matches. hasMany lists are stored under the referencing table
// name, or "<table>_<column>" when that table references this one through
// more than one column.
func (l *relationLoader) Load(ctx context.Context, rows []models.Record) error {
	for _, link := range l.belongsToLinks() {
		if err := l.loadBelongsTo(ctx, link, rows); err != nil {
			return err
		}
	}
	for _, link := range l.hasManyLinks() {
		if err := l.loadHasMany(ctx, link, rows); err != nil {
			return err
		}
	}
	return nil
}

func (l *relationLoader) belongsToLinks() []belongsToLink {
	var links []belongsToLink
	for _, col := range l.t.meta.Columns {
		if col.ForeignKey == nil {
			continue
		}
		target, ok := models.FindTable(l.t.all, col.ForeignKey.Table)
		if !ok {
			continue
		}
		if _, ok := target.Column(col.ForeignKey.Column); !ok {
			continue
		}
		key := strings.TrimSuffix(col.Name, "_id")
		if key == col.Name || key == "" {
			key = target.Name
		}
		links = append(links, belongsToLink{column: col.Name, target: target, ref: col.ForeignKey.Column, key: key})
	}
	return links
}

func (l *relationLoader) hasManyLinks() []hasManyLink {
	var links []hasManyLink
	perSource := make(map[string]int)

	for i := range l.t.all {
		source := &l.t.all[i]
		for _, col := range source.Columns {
			if col.ForeignKey == nil || col.ForeignKey.Table != l.t.meta.Name {
				continue
			}
			if _, ok := l.t.meta.Column(col.ForeignKey.Column); !ok {
				continue
			}
			perSource[source.Name]++
			links = append(links, hasManyLink{source: source, column: col.Name, ref: col.ForeignKey.Column})
		}
	}

	for i := range links {
		links[i].key = links[i].source.Name
		if perSource[links[i].source.Name] > 1 {
			links[i].key = links[i].source.Name + "_" + links[i].column
		}
	}
	return links
}

func (l *relationLoader) loadBelongsTo(ctx context.Context, link belongsToLink, rows []models.Record) error {
	values := distinctValues(rows, link.column)

	matches := make(map[string]models.Record, len(values))
	if len(values) > 0 {
		related, err := l.fetchIn(ctx, link.target.Name, link.ref, values)
		if err != nil {
			return err
		}
		for _, r := range related {
			matches[valueKey(r[link.ref])] = r
		}
	}

	for _, row := range rows {
		v := row[link.column]
		if v == nil {
			row[link.key] = nil
			continue
		}
		if m, ok := matches[valueKey(v)]; ok {
			row[link.key] = m
		} else {
			row[link.key] = nil
		}
	}
	return nil
}

func (l *relationLoader) loadHasMany(ctx context.Context, link hasManyLink, rows []models.Record) error {
	values := distinctValues(rows, link.ref)

	groups := make(map[string][]models.Record, len(values))
	if len(values) > 0 {
		related, err := l.fetchIn(ctx, link.source.Name, link.column, values)
		if err != nil {
			return err
		}
		for _, r := range related {
			k := valueKey(r[link.column])
			groups[k] = append(groups[k], r)
		}
	}

	for _, row := range rows {
		group := groups[valueKey(row[link.ref])]
		if group == nil || row[link.ref] == nil {
			group = []models.Record{}
		}
		row[link.key] = group
	}
	return nil
}

// fetchIn selects every row of table whose column is in values.
func (l *relationLoader) fetchIn(ctx context.Context, table, column string, values []any) ([]models.Record, error) {
	var out []models.Record
	for start := 0; start < len(values); start += relationChunkSize {
		end := min(start+relationChunkSize, len(values))
		q := l.t.builder.Select("*").
			From(l.t.quote(table)).
			Where(sq.Eq{l.t.quote(column): values[start:end]})

		res, err := l.t.query(ctx, "select", q)
		if err != nil {
			return nil, fmt.Errorf("load %s relation: %w", table, err)
		}
		out = append(out, res.Rows...)
	}
	return out, nil
}

// distinctValues returns the unique non-null values of column across rows,
// in first-seen order.
func distinctValues(rows []models.Record, column string) []any {
	seen := make(map[string]bool, len(rows))
	var out []any
	for _, row := range rows {
		v := row[column]
		if v == nil {
			continue
		}
		k := valueKey(v)
		if seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, v)
	}
	return out
}

// valueKey compares key values across tables whose drivers may report them
// with different Go types (int64 and uint64, say).
func valueKey(v any) string {
	return fmt.Sprint(v)
}
