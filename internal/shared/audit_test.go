package shared

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/require"
)

type recordingExecer struct {
	sql  string
	args []any
}

func (r *recordingExecer) Exec(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	r.sql = sql
	r.args = args
	return pgconn.NewCommandTag("INSERT 0 1"), nil
}

func TestAuditLoggerRecord(t *testing.T) {
	db := &recordingExecer{}
	logger := NewAuditLogger(db)

	err := logger.Record(context.Background(), AuditLog{Actor: "ana", Action: "lot.confirm", Entity: "lot", EntityID: "7", Meta: map[string]any{"items": 1}})
	require.NoError(t, err)
	require.Contains(t, db.sql, "INSERT INTO audit_logs")
	require.Equal(t, "ana", db.args[0])
	require.JSONEq(t, `{"items":1}`, string(db.args[4].([]byte)))
	require.Nil(t, db.args[5].(*time.Time))
}

func TestAuditLoggerRejectsIncompleteRecord(t *testing.T) {
	logger := NewAuditLogger(&recordingExecer{})
	require.Error(t, logger.Record(context.Background(), AuditLog{Action: "lot.delete"}))

	var nilLogger *AuditLogger
	require.Error(t, nilLogger.Record(context.Background(), AuditLog{Action: "a", Entity: "b", EntityID: "c"}))
}

func TestOperator(t *testing.T) {
	req := httptest.NewRequest("POST", "/lots/1/confirm", nil)
	require.Equal(t, "unknown", Operator(req))

	req.Header.Set(OperatorHeader, "  luis ")
	require.Equal(t, "luis", Operator(req))
}
