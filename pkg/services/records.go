package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	sq "github.com/Masterminds/squirrel"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-studio/pkg/adapters/datasource"
	"github.com/ekaya-inc/ekaya-studio/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-studio/pkg/logging"
	"github.com/ekaya-inc/ekaya-studio/pkg/models"
	sqlaudit "github.com/ekaya-inc/ekaya-studio/pkg/sql"
)

// RecordService runs generic CRUD against any introspected table.
//
// Table and column names are a closed set taken from the introspected
// metadata; anything else is rejected before SQL is built. Values are always
// bound parameters.
type RecordService interface {
	List(ctx context.Context, connString, table string, params models.ListParams) (*models.ListResult, error)
	Get(ctx context.Context, connString, table, id string, includeRelations bool) (models.Record, error)
	Create(ctx context.Context, connString, table string, payload map[string]any) (models.Record, error)
	Update(ctx context.Context, connString, table, id string, payload map[string]any) (models.Record, error)
	Delete(ctx context.Context, connString, table, id string) (*models.DeleteResult, error)
	BatchDelete(ctx context.Context, connString, table string, ids []string) (int64, error)
}

type recordService struct {
	tables   TableService
	resolver ConnectionResolver
	auditor  *sqlaudit.InjectionAuditor
	logger   *zap.Logger
}

var _ RecordService = (*recordService)(nil)

// NewRecordService creates a record service.
func NewRecordService(tables TableService, resolver ConnectionResolver, auditor *sqlaudit.InjectionAuditor, logger *zap.Logger) RecordService {
	return &recordService{
		tables:   tables,
		resolver: resolver,
		auditor:  auditor,
		logger:   logger.Named("records"),
	}
}

// recordTarget is one validated table on one resolved connection. The
// handle is leased; callers release it when the operation ends.
type recordTarget struct {
	meta    *models.TableMeta
	all     []models.TableMeta
	handle  *datasource.Handle
	builder sq.StatementBuilderType
}

func (t *recordTarget) quote(name string) string {
	return t.handle.Executor.QuoteIdentifier(name)
}

func (t *recordTarget) table() string {
	return t.quote(t.meta.Name)
}

func (t *recordTarget) query(ctx context.Context, op string, b sq.Sqlizer) (*datasource.QueryResult, error) {
	sqlStr, args, err := b.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build %s: %w", op, err)
	}
	res, err := t.handle.Executor.Query(ctx, sqlStr, args...)
	if err != nil {
		return nil, apperrors.NewQueryError(op, err)
	}
	return res, nil
}

func (t *recordTarget) exec(ctx context.Context, op string, b sq.Sqlizer) (*datasource.ExecuteResult, error) {
	sqlStr, args, err := b.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build %s: %w", op, err)
	}
	res, err := t.handle.Executor.Exec(ctx, sqlStr, args...)
	if err != nil {
		return nil, apperrors.NewQueryError(op, err)
	}
	return res, nil
}

func (s *recordService) target(ctx context.Context, connString, table string) (*recordTarget, error) {
	if strings.TrimSpace(connString) == "" {
		return nil, apperrors.NewValidationError("url", "Database URL is required")
	}

	all, err := s.tables.ListTables(ctx, connString)
	if err != nil {
		return nil, err
	}
	meta, ok := models.FindTable(all, table)
	if !ok {
		return nil, fmt.Errorf("%w: %q", apperrors.ErrTableNotFound, table)
	}

	handle, err := s.resolver.Resolve(ctx, connString)
	if err != nil {
		return nil, err
	}

	return &recordTarget{
		meta:    meta,
		all:     all,
		handle:  handle,
		builder: sq.StatementBuilder.PlaceholderFormat(handle.Dialect.PlaceholderFormat()),
	}, nil
}

// List implements RecordService.
func (s *recordService) List(ctx context.Context, connString, table string, params models.ListParams) (*models.ListResult, error) {
	params = params.Normalize()

	t, err := s.target(ctx, connString, table)
	if err != nil {
		return nil, err
	}
	defer t.handle.Release()
	if params.SortBy != "" {
		if _, ok := t.meta.Column(params.SortBy); !ok {
			return nil, apperrors.NewValidationError("sortBy", "Unknown sort column: %s", params.SortBy)
		}
	}

	countRes, err := t.query(ctx, "count", t.builder.Select("COUNT(*) AS total").From(t.table()))
	if err != nil {
		return nil, err
	}
	var total int64
	if len(countRes.Rows) > 0 {
		total = toInt64(countRes.Rows[0]["total"])
	}

	sel := t.builder.Select("*").From(t.table()).
		Limit(uint64(params.Limit)).
		Offset(uint64(params.Offset()))
	if params.SortBy != "" {
		sel = sel.OrderBy(t.quote(params.SortBy) + " " + strings.ToUpper(string(params.SortOrder)))
	}

	res, err := t.query(ctx, "select", sel)
	if err != nil {
		return nil, err
	}

	rows := res.Rows
	if rows == nil {
		rows = []models.Record{}
	}
	if params.IncludeRelations && len(rows) > 0 {
		if err := newRelationLoader(t).Load(ctx, rows); err != nil {
			return nil, err
		}
	}

	return &models.ListResult{
		Data:       rows,
		Total:      total,
		Page:       params.Page,
		Limit:      params.Limit,
		TotalPages: models.TotalPages(total, params.Limit),
	}, nil
}

// Get implements RecordService.
func (s *recordService) Get(ctx context.Context, connString, table, id string, includeRelations bool) (models.Record, error) {
	t, err := s.target(ctx, connString, table)
	if err != nil {
		return nil, err
	}
	defer t.handle.Release()
	pk, idVal, err := s.primaryKeyValue(t, id)
	if err != nil {
		return nil, err
	}

	row, err := s.selectByKey(ctx, t, pk, idVal)
	if err != nil {
		return nil, err
	}
	if includeRelations {
		if err := newRelationLoader(t).Load(ctx, []models.Record{row}); err != nil {
			return nil, err
		}
	}
	return row, nil
}

// Create implements RecordService.
func (s *recordService) Create(ctx context.Context, connString, table string, payload map[string]any) (models.Record, error) {
	if len(payload) == 0 {
		return nil, apperrors.NewValidationError("body", "At least one field is required")
	}

	t, err := s.target(ctx, connString, table)
	if err != nil {
		return nil, err
	}
	defer t.handle.Release()
	cols, vals, err := bindPayload(t.meta, payload)
	if err != nil {
		return nil, err
	}
	if err := s.auditor.Audit(t.meta.Name, payload); err != nil {
		return nil, err
	}

	quoted := make([]string, len(cols))
	for i, c := range cols {
		quoted[i] = t.quote(c)
	}
	ins := t.builder.Insert(t.table()).Columns(quoted...).Values(vals...)

	if t.handle.Dialect.SupportsReturning() {
		res, err := t.query(ctx, "insert", ins.Suffix("RETURNING *"))
		if err != nil {
			return nil, err
		}
		if len(res.Rows) == 0 {
			return nil, apperrors.NewQueryError("insert", errors.New("insert returned no row"))
		}
		s.logMutation("Created record", t)
		return res.Rows[0], nil
	}

	res, err := t.exec(ctx, "insert", ins)
	if err != nil {
		return nil, err
	}
	s.logMutation("Created record", t)

	// Re-read by the supplied key, or by the generated one.
	pk := t.meta.PrimaryKey()
	var key any
	if v, ok := payload[pk]; ok && v != nil {
		key = vals[indexOf(cols, pk)]
	} else if res.LastInsertID != 0 {
		key = res.LastInsertID
	}
	if key != nil {
		return s.selectByKey(ctx, t, pk, key)
	}
	return s.selectInserted(ctx, t, cols, vals, payload)
}

// selectInserted re-reads a row whose key the database generated without
// reporting it (a uuid() column default on MySQL, say) by matching every
// inserted value. When that does not identify exactly one row the payload is
// returned as written.
func (s *recordService) selectInserted(ctx context.Context, t *recordTarget, cols []string, vals []any, payload map[string]any) (models.Record, error) {
	match := make(sq.Eq, len(cols))
	for i, c := range cols {
		match[t.quote(c)] = vals[i]
	}
	res, err := t.query(ctx, "select", t.builder.Select("*").From(t.table()).Where(match).Limit(2))
	if err != nil {
		return nil, err
	}
	if len(res.Rows) == 1 {
		return res.Rows[0], nil
	}

	s.logger.Debug("Inserted row not uniquely identifiable; returning payload",
		zap.String("table", t.meta.Name),
		zap.Int("matches", len(res.Rows)))
	return models.Record(payload), nil
}

// Update implements RecordService.
func (s *recordService) Update(ctx context.Context, connString, table, id string, payload map[string]any) (models.Record, error) {
	t, err := s.target(ctx, connString, table)
	if err != nil {
		return nil, err
	}
	defer t.handle.Release()
	pk, idVal, err := s.primaryKeyValue(t, id)
	if err != nil {
		return nil, err
	}

	fields := make(map[string]any, len(payload))
	for k, v := range payload {
		if k != pk {
			fields[k] = v
		}
	}
	if len(fields) == 0 {
		return nil, apperrors.ErrNoFieldsToUpdate
	}

	cols, vals, err := bindPayload(t.meta, fields)
	if err != nil {
		return nil, err
	}
	if err := s.auditor.Audit(t.meta.Name, fields); err != nil {
		return nil, err
	}

	upd := t.builder.Update(t.table()).Where(sq.Eq{t.quote(pk): idVal})
	for i, c := range cols {
		upd = upd.Set(t.quote(c), vals[i])
	}

	if t.handle.Dialect.SupportsReturning() {
		res, err := t.query(ctx, "update", upd.Suffix("RETURNING *"))
		if err != nil {
			return nil, err
		}
		if len(res.Rows) == 0 {
			return nil, apperrors.ErrRecordNotFound
		}
		s.logMutation("Updated record", t)
		return res.Rows[0], nil
	}

	res, err := t.exec(ctx, "update", upd)
	if err != nil {
		return nil, err
	}
	if res.RowsAffected == 0 {
		return nil, apperrors.ErrRecordNotFound
	}
	s.logMutation("Updated record", t)
	return s.selectByKey(ctx, t, pk, idVal)
}

// Delete implements RecordService.
func (s *recordService) Delete(ctx context.Context, connString, table, id string) (*models.DeleteResult, error) {
	t, err := s.target(ctx, connString, table)
	if err != nil {
		return nil, err
	}
	defer t.handle.Release()
	pk, idVal, err := s.primaryKeyValue(t, id)
	if err != nil {
		return nil, err
	}

	del := t.builder.Delete(t.table()).Where(sq.Eq{t.quote(pk): idVal})

	var deleted models.Record
	if t.handle.Dialect.SupportsReturning() {
		res, err := t.query(ctx, "delete", del.Suffix("RETURNING *"))
		if err != nil {
			return nil, err
		}
		if len(res.Rows) == 0 {
			return nil, apperrors.ErrRecordNotFound
		}
		deleted = res.Rows[0]
	} else {
		row, err := s.selectByKey(ctx, t, pk, idVal)
		if err != nil {
			return nil, err
		}
		res, err := t.exec(ctx, "delete", del)
		if err != nil {
			return nil, err
		}
		if res.RowsAffected == 0 {
			return nil, apperrors.ErrRecordNotFound
		}
		deleted = row
	}

	s.logMutation("Deleted record", t)
	return &models.DeleteResult{DeletedID: idVal, Record: deleted}, nil
}

// BatchDelete implements RecordService.
func (s *recordService) BatchDelete(ctx context.Context, connString, table string, ids []string) (int64, error) {
	if len(ids) == 0 {
		return 0, apperrors.NewValidationError("ids", "At least one id is required")
	}

	t, err := s.target(ctx, connString, table)
	if err != nil {
		return 0, err
	}
	defer t.handle.Release()

	var pk string
	keys := make([]any, 0, len(ids))
	for _, id := range ids {
		k, v, err := s.primaryKeyValue(t, id)
		if err != nil {
			return 0, err
		}
		pk = k
		keys = append(keys, v)
	}

	res, err := t.exec(ctx, "delete", t.builder.Delete(t.table()).Where(sq.Eq{t.quote(pk): keys}))
	if err != nil {
		return 0, err
	}
	if res.RowsAffected == 0 {
		return 0, apperrors.ErrRecordNotFound
	}

	s.logger.Info("Deleted records",
		zap.String("table", t.meta.Name),
		zap.Int64("count", res.RowsAffected),
		zap.String("dialect", string(t.handle.Dialect)))
	return res.RowsAffected, nil
}

// primaryKeyValue resolves the pk column and converts id to its type.
func (s *recordService) primaryKeyValue(t *recordTarget, id string) (string, any, error) {
	if strings.TrimSpace(id) == "" {
		return "", nil, apperrors.NewValidationError("id", "Record id is required")
	}

	pk := t.meta.PrimaryKey()
	col, ok := t.meta.Column(pk)
	if !ok {
		return "", nil, apperrors.NewValidationError("id", "Table %q has no primary key", t.meta.Name)
	}

	if err := s.auditor.Audit(t.meta.Name, map[string]any{pk: id}); err != nil {
		return "", nil, err
	}

	if col.IsInteger() {
		n, err := strconv.ParseInt(strings.TrimSpace(id), 10, 64)
		if err != nil {
			return "", nil, apperrors.NewValidationError("id", "Invalid id %q: expected an integer", id)
		}
		return pk, n, nil
	}
	return pk, id, nil
}

func (s *recordService) selectByKey(ctx context.Context, t *recordTarget, pk string, key any) (models.Record, error) {
	res, err := t.query(ctx, "select",
		t.builder.Select("*").From(t.table()).Where(sq.Eq{t.quote(pk): key}).Limit(1))
	if err != nil {
		return nil, err
	}
	if len(res.Rows) == 0 {
		return nil, apperrors.ErrRecordNotFound
	}
	return res.Rows[0], nil
}

func (s *recordService) logMutation(msg string, t *recordTarget) {
	s.logger.Info(msg,
		zap.String("table", t.meta.Name),
		zap.String("dialect", string(t.handle.Dialect)),
		zap.String("url", logging.SanitizeConnectionString(t.handle.ConnString)))
}

// bindPayload validates payload keys against the table columns and converts
// JSON-decoded values into driver values. Columns are returned sorted.
func bindPayload(meta *models.TableMeta, payload map[string]any) ([]string, []any, error) {
	cols := make([]string, 0, len(payload))
	for k := range payload {
		if _, ok := meta.Column(k); !ok {
			return nil, nil, apperrors.NewValidationError(k, "Unknown column: %s", k)
		}
		cols = append(cols, k)
	}
	sort.Strings(cols)

	vals := make([]any, len(cols))
	for i, c := range cols {
		col, _ := meta.Column(c)
		v, err := bindValue(col, payload[c])
		if err != nil {
			return nil, nil, err
		}
		vals[i] = v
	}
	return cols, vals, nil
}

// bindValue converts a JSON-decoded value for col.
func bindValue(col *models.ColumnMeta, v any) (any, error) {
	switch val := v.(type) {
	case nil:
		return nil, nil
	case json.Number:
		switch {
		case col.IsInteger():
			n, err := val.Int64()
			if err != nil {
				return nil, apperrors.NewValidationError(col.Name, "Invalid value for %s: expected an integer", col.Name)
			}
			return n, nil
		case col.Type == models.ColumnTypeDecimal:
			return val.String(), nil
		}
		if n, err := val.Int64(); err == nil {
			return n, nil
		}
		f, err := val.Float64()
		if err != nil {
			return nil, apperrors.NewValidationError(col.Name, "Invalid number for %s", col.Name)
		}
		return f, nil
	case float64:
		if col.IsInteger() && val == float64(int64(val)) {
			return int64(val), nil
		}
		return val, nil
	case string:
		switch {
		case col.IsInteger():
			if n, err := strconv.ParseInt(strings.TrimSpace(val), 10, 64); err == nil {
				return n, nil
			}
		case col.Type == models.ColumnTypeBoolean:
			if b, err := strconv.ParseBool(strings.TrimSpace(val)); err == nil {
				return b, nil
			}
		}
		return val, nil
	case map[string]any, []any:
		b, err := json.Marshal(val)
		if err != nil {
			return nil, apperrors.NewValidationError(col.Name, "Invalid JSON for %s", col.Name)
		}
		return string(b), nil
	default:
		return v, nil
	}
}

func indexOf(list []string, s string) int {
	for i, v := range list {
		if v == s {
			return i
		}
	}
	return -1
}

func toInt64(v any) int64 {
	switch n := v.(type) {
	case int64:
		return n
	case int32:
		return int64(n)
	case int:
		return int64(n)
	case uint64:
		return int64(n)
	case float64:
		return int64(n)
	case string:
		i, _ := strconv.ParseInt(n, 10, 64)
		return i
	case json.Number:
		i, _ := n.Int64()
		return i
	default:
		return 0
	}
}
