package handlers

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-studio/pkg/adapters/datasource"
	"github.com/ekaya-inc/ekaya-studio/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-studio/pkg/auth"
	"github.com/ekaya-inc/ekaya-studio/pkg/models"
)

// mockTableService is a configurable TableService for handler tests.
type mockTableService struct {
	tables      []models.TableMeta
	err         error
	gotConn     string
	invalidated []string
}

func (m *mockTableService) ListTables(ctx context.Context, connString string) ([]models.TableMeta, error) {
	m.gotConn = connString
	return m.tables, m.err
}

func (m *mockTableService) GetTableMeta(ctx context.Context, connString, table string) (*models.TableMeta, error) {
	m.gotConn = connString
	if m.err != nil {
		return nil, m.err
	}
	if meta, ok := models.FindTable(m.tables, table); ok {
		return meta, nil
	}
	return nil, apperrors.ErrTableNotFound
}

func (m *mockTableService) Invalidate(connString string) {
	m.invalidated = append(m.invalidated, connString)
}

// mockRecordService records the arguments of the last call.
type mockRecordService struct {
	listResult   *models.ListResult
	record       models.Record
	deleteResult *models.DeleteResult
	deleted      int64
	err          error

	gotConn    string
	gotTable   string
	gotID      string
	gotParams  models.ListParams
	gotInclude bool
	gotPayload map[string]any
	gotIDs     []string
}

func (m *mockRecordService) List(ctx context.Context, connString, table string, params models.ListParams) (*models.ListResult, error) {
	m.gotConn, m.gotTable, m.gotParams = connString, table, params
	if m.err != nil {
		return nil, m.err
	}
	if m.listResult != nil {
		return m.listResult, nil
	}
	return &models.ListResult{Data: []models.Record{}, Page: params.Page, Limit: params.Limit}, nil
}

func (m *mockRecordService) Get(ctx context.Context, connString, table, id string, includeRelations bool) (models.Record, error) {
	m.gotConn, m.gotTable, m.gotID, m.gotInclude = connString, table, id, includeRelations
	return m.record, m.err
}

func (m *mockRecordService) Create(ctx context.Context, connString, table string, payload map[string]any) (models.Record, error) {
	m.gotConn, m.gotTable, m.gotPayload = connString, table, payload
	return m.record, m.err
}

func (m *mockRecordService) Update(ctx context.Context, connString, table, id string, payload map[string]any) (models.Record, error) {
	m.gotConn, m.gotTable, m.gotID, m.gotPayload = connString, table, id, payload
	return m.record, m.err
}

func (m *mockRecordService) Delete(ctx context.Context, connString, table, id string) (*models.DeleteResult, error) {
	m.gotConn, m.gotTable, m.gotID = connString, table, id
	if m.err != nil {
		return nil, m.err
	}
	return m.deleteResult, nil
}

func (m *mockRecordService) BatchDelete(ctx context.Context, connString, table string, ids []string) (int64, error) {
	m.gotConn, m.gotTable, m.gotIDs = connString, table, ids
	return m.deleted, m.err
}

// mockRegistry stands in for the connection manager.
type mockRegistry struct {
	err     error
	opened  []string
	evicted []string
}

func (m *mockRegistry) Resolve(ctx context.Context, connString string) (*datasource.Handle, error) {
	if m.err != nil {
		return nil, m.err
	}
	m.opened = append(m.opened, connString)
	return &datasource.Handle{ConnString: connString}, nil
}

func (m *mockRegistry) Evict(connString string) bool {
	m.evicted = append(m.evicted, connString)
	return true
}

// mockConnectionStore keeps the connection context in memory.
type mockConnectionStore struct {
	connString string
	dialect    string
	saveErr    error
	cleared    bool
}

func (m *mockConnectionStore) Get(r *http.Request) (string, string, error) {
	if m.connString == "" {
		return "", "", auth.ErrNoConnection
	}
	return m.connString, m.dialect, nil
}

func (m *mockConnectionStore) Save(w http.ResponseWriter, r *http.Request, connString, dialect string) error {
	if m.saveErr != nil {
		return m.saveErr
	}
	m.connString, m.dialect = connString, dialect
	return nil
}

func (m *mockConnectionStore) Clear(w http.ResponseWriter, r *http.Request) error {
	m.connString, m.dialect = "", ""
	m.cleared = true
	return nil
}

type mockStats struct {
	stats datasource.ConnectionStats
}

func (m *mockStats) GetStats() datasource.ConnectionStats {
	return m.stats
}

var errBoom = errors.New("boom")

// newTestSessions returns a session manager and a valid token for "admin".
func newTestSessions(t *testing.T) (*auth.SessionManager, string) {
	t.Helper()
	sessions, err := auth.NewSessionManager("handler-test-secret", time.Hour, zap.NewNop())
	if err != nil {
		t.Fatalf("failed to create session manager: %v", err)
	}
	token, _, err := sessions.Issue(models.User{ID: "admin", Username: "admin"})
	if err != nil {
		t.Fatalf("failed to issue token: %v", err)
	}
	return sessions, token
}

func withSessionCookie(r *http.Request, token string) *http.Request {
	r.AddCookie(&http.Cookie{Name: auth.SessionCookieName, Value: token})
	return r
}
