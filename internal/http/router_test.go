package http

import (
	"context"
	"encoding/json"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/audit-trail/backend/internal/auth"
	"github.com/audit-trail/backend/internal/config"
	"github.com/audit-trail/backend/internal/db"
	"github.com/audit-trail/backend/internal/http/dto"
	"github.com/audit-trail/backend/internal/http/handlers"
	"github.com/audit-trail/backend/internal/models"
	"github.com/audit-trail/backend/internal/repositories"
	"github.com/audit-trail/backend/internal/services"
)

type memStats struct{ s *models.AuditStats }

func (m *memStats) Get(context.Context) (*models.AuditStats, error) {
	if m.s == nil {
		return nil, repositories.ErrNotFound
	}
	return m.s, nil
}

func (m *memStats) Put(_ context.Context, s *models.AuditStats, _ time.Duration) error {
	m.s = s
	return nil
}

type testEnv struct {
	app *fiber.App
	svc *services.AuditService
	cfg *config.Config
}

func setupApp(t *testing.T, authEnabled bool) *testEnv {
	t.Helper()
	conn, err := db.OpenSQLite(context.Background(), ":memory:", zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	repo := repositories.NewSQLiteAuditRepo(conn)
	require.NoError(t, repo.EnsureSchema(context.Background()))

	hash, err := auth.HashSecret("ingest-secret")
	require.NoError(t, err)

	cfg := &config.Config{
		AllowedOrigins:     "*",
		AuthEnabled:        authEnabled,
		JWTSecret:          "test-secret",
		JWTExpiration:      time.Hour,
		RateLimitPerMinute: 100,
		APIClients: []config.APIClient{
			{ID: "ingest", Role: "writer", SecretHash: hash},
			{ID: "legacy", Role: "owner", SecretHash: hash},
		},
	}

	log := zap.NewNop()
	svc := services.NewAuditService(repo, &memStats{}, nil, log)
	v := dto.NewValidator()

	app := NewApp()
	SetupRouter(app, cfg, log, nil, Handlers{
		Audit:  handlers.NewAuditHandler(svc, v, log),
		Auth:   handlers.NewAuthHandler(cfg, v, log),
		Health: handlers.NewHealthHandler(svc, log),
		Meta:   handlers.NewMetaHandler(),
	})
	return &testEnv{app: app, svc: svc, cfg: cfg}
}

type envelope struct {
	OK    bool            `json:"ok"`
	Data  json.RawMessage `json:"data"`
	Error string          `json:"error"`
}

func do(t *testing.T, app *fiber.App, method, path, body string, headers ...string) (int, envelope, map[string]string) {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	resp, err := app.Test(req, 5000)
	require.NoError(t, err)
	defer resp.Body.Close()

	var env envelope
	raw, _ := io.ReadAll(resp.Body)
	_ = json.Unmarshal(raw, &env)
	return resp.StatusCode, env, map[string]string{"Location": resp.Header.Get("Location")}
}

func TestCreateAndFetchAudit(t *testing.T) {
	env := setupApp(t, false)

	status, body, hdr := do(t, env.app, "POST", "/api/v1/audit", `{
		"entityName": "Order", "entityId": "42", "action": "Updated", "userId": "alice",
		"objectBefore": {"a": 1, "b": 2},
		"objectAfter": "{\"a\":1,\"b\":3,\"c\":4}",
		"additionalMetadata": {"ip": "10.0.0.1"}
	}`)
	require.Equal(t, fiber.StatusCreated, status)
	assert.True(t, body.OK)

	var created models.AuditEntry
	require.NoError(t, json.Unmarshal(body.Data, &created))
	assert.Equal(t, "/api/v1/audit/1", hdr["Location"])
	require.Len(t, created.Changes, 2)
	assert.Equal(t, "b", created.Changes[0].FieldName)
	assert.Equal(t, "c", created.Changes[1].FieldName)
	assert.Nil(t, created.Changes[1].OldValue)

	status, body, _ = do(t, env.app, "GET", "/api/v1/audit/1", "")
	require.Equal(t, fiber.StatusOK, status)
	var fetched models.AuditEntry
	require.NoError(t, json.Unmarshal(body.Data, &fetched))
	assert.Equal(t, created.Changes, fetched.Changes)
	assert.Equal(t, models.ActionUpdated, fetched.Action)
	assert.JSONEq(t, `"10.0.0.1"`, string(fetched.Metadata["ip"]))
}

func TestCreateAuditStatusCodes(t *testing.T) {
	env := setupApp(t, false)

	tests := []struct {
		name string
		body string
		want int
	}{
		{"numeric action", `{"entityName":"A","entityId":"1","action":0,"userId":"u","objectAfter":{"x":1}}`, fiber.StatusCreated},
		{"non-object snapshot still stored", `{"entityName":"A","entityId":"1","action":"Created","userId":"u","objectAfter":[1,2]}`, fiber.StatusCreated},
		{"no snapshots", `{"entityName":"A","entityId":"1","action":"Deleted","userId":"u"}`, fiber.StatusCreated},
		{"malformed double encoding", `{"entityName":"A","entityId":"1","action":"Created","userId":"u","objectAfter":"{oops"}`, fiber.StatusBadRequest},
		{"missing fields", `{"action":"Created"}`, fiber.StatusBadRequest},
		{"unknown action", `{"entityName":"A","entityId":"1","action":"Archived","userId":"u"}`, fiber.StatusBadRequest},
		{"action out of range", `{"entityName":"A","entityId":"1","action":9,"userId":"u"}`, fiber.StatusBadRequest},
		{"broken json", `{"entityName":`, fiber.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, _, _ := do(t, env.app, "POST", "/api/v1/audit", tt.body)
			assert.Equal(t, tt.want, status)
		})
	}

	// only the three accepted requests were stored
	page, err := env.svc.GetEntries(context.Background(), models.AuditQuery{})
	require.NoError(t, err)
	assert.Equal(t, 3, page.TotalCount)
}

func TestListAudit(t *testing.T) {
	env := setupApp(t, false)
	for _, body := range []string{
		`{"entityName":"Order","entityId":"1","action":"Created","userId":"alice"}`,
		`{"entityName":"Order","entityId":"1","action":"Updated","userId":"bob"}`,
		`{"entityName":"User","entityId":"9","action":"Created","userId":"alice"}`,
	} {
		status, _, _ := do(t, env.app, "POST", "/api/v1/audit", body)
		require.Equal(t, fiber.StatusCreated, status)
	}

	tests := []struct {
		name      string
		query     string
		want      int
		wantTotal int
		wantItems int
	}{
		{"all", "", fiber.StatusOK, 3, 3},
		{"by user", "?userId=alice", fiber.StatusOK, 2, 2},
		{"by action ordinal", "?action=1", fiber.StatusOK, 1, 1},
		{"by action name", "?action=created&entityName=Order", fiber.StatusOK, 1, 1},
		{"paged", "?pageSize=2&pageNumber=2", fiber.StatusOK, 3, 1},
		{"page far past end", "?pageNumber=9223372036854775807", fiber.StatusOK, 3, 0},
		{"date range", "?fromDate=2000-01-01&toDate=2999-01-01T00:00:00Z", fiber.StatusOK, 3, 3},
		{"bad action", "?action=Archived", fiber.StatusBadRequest, 0, 0},
		{"bad date", "?fromDate=yesterday", fiber.StatusBadRequest, 0, 0},
		{"bad page", "?pageNumber=two", fiber.StatusBadRequest, 0, 0},
		{"inverted range", "?fromDate=2020-01-02&toDate=2020-01-01", fiber.StatusBadRequest, 0, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, body, _ := do(t, env.app, "GET", "/api/v1/audit"+tt.query, "")
			require.Equal(t, tt.want, status)
			if status != fiber.StatusOK {
				return
			}
			var page models.Page[models.AuditEntry]
			require.NoError(t, json.Unmarshal(body.Data, &page))
			assert.Equal(t, tt.wantTotal, page.TotalCount)
			assert.Len(t, page.Items, tt.wantItems)
		})
	}
}

func TestGetAuditErrors(t *testing.T) {
	env := setupApp(t, false)

	status, _, _ := do(t, env.app, "GET", "/api/v1/audit/abc", "")
	assert.Equal(t, fiber.StatusBadRequest, status)

	status, body, _ := do(t, env.app, "GET", "/api/v1/audit/77", "")
	assert.Equal(t, fiber.StatusNotFound, status)
	assert.Equal(t, "not found", body.Error)
}

func TestEntityHistory(t *testing.T) {
	env := setupApp(t, false)
	do(t, env.app, "POST", "/api/v1/audit", `{"entityName":"Order","entityId":"5","action":"Created","userId":"u"}`)
	do(t, env.app, "POST", "/api/v1/audit", `{"entityName":"Order","entityId":"5","action":"Deleted","userId":"u"}`)

	status, body, _ := do(t, env.app, "GET", "/api/v1/audit/entity/Order/5", "")
	require.Equal(t, fiber.StatusOK, status)
	var history []models.AuditEntry
	require.NoError(t, json.Unmarshal(body.Data, &history))
	require.Len(t, history, 2)
	assert.Equal(t, models.ActionDeleted, history[0].Action)
}

func TestStatsEndpoint(t *testing.T) {
	env := setupApp(t, false)

	status, _, _ := do(t, env.app, "GET", "/api/v1/audit/stats", "")
	assert.Equal(t, fiber.StatusNotFound, status)

	do(t, env.app, "POST", "/api/v1/audit", `{"entityName":"Order","entityId":"5","action":"Created","userId":"u"}`)
	_, err := env.svc.RefreshStats(context.Background(), 24*time.Hour, time.Hour)
	require.NoError(t, err)

	status, body, _ := do(t, env.app, "GET", "/api/v1/audit/stats", "")
	require.Equal(t, fiber.StatusOK, status)
	var stats models.AuditStats
	require.NoError(t, json.Unmarshal(body.Data, &stats))
	assert.Equal(t, int64(1), stats.Total)
}

func TestHealthAndReady(t *testing.T) {
	env := setupApp(t, false)
	status, _, _ := do(t, env.app, "GET", "/health", "")
	assert.Equal(t, fiber.StatusOK, status)
	status, _, _ = do(t, env.app, "GET", "/ready", "")
	assert.Equal(t, fiber.StatusOK, status)
}

func TestTokenAndProtectedRoutes(t *testing.T) {
	env := setupApp(t, true)

	status, _, _ := do(t, env.app, "GET", "/api/v1/audit", "")
	assert.Equal(t, fiber.StatusUnauthorized, status)

	status, _, _ = do(t, env.app, "POST", "/api/v1/auth/token", `{"clientId":"ingest","clientSecret":"wrong"}`)
	assert.Equal(t, fiber.StatusUnauthorized, status)

	status, _, _ = do(t, env.app, "POST", "/api/v1/auth/token", `{"clientId":"nobody","clientSecret":"ingest-secret"}`)
	assert.Equal(t, fiber.StatusUnauthorized, status)

	status, _, _ = do(t, env.app, "POST", "/api/v1/auth/token", `{"clientId":"legacy","clientSecret":"ingest-secret"}`)
	assert.Equal(t, fiber.StatusForbidden, status)

	status, _, _ = do(t, env.app, "POST", "/api/v1/auth/token", `{"clientId":"ingest"}`)
	assert.Equal(t, fiber.StatusBadRequest, status)

	status, body, _ := do(t, env.app, "POST", "/api/v1/auth/token", `{"clientId":"ingest","clientSecret":"ingest-secret"}`)
	require.Equal(t, fiber.StatusOK, status)
	var tok dto.TokenResponse
	require.NoError(t, json.Unmarshal(body.Data, &tok))
	assert.Equal(t, "writer", tok.Role)

	bearer := "Bearer " + tok.Token
	status, _, _ = do(t, env.app, "POST", "/api/v1/audit",
		`{"entityName":"Order","entityId":"1","action":"Created","userId":"u"}`, "Authorization", bearer)
	assert.Equal(t, fiber.StatusCreated, status)

	// writers cannot read
	status, _, _ = do(t, env.app, "GET", "/api/v1/audit", "", "Authorization", bearer)
	assert.Equal(t, fiber.StatusForbidden, status)
}

func TestMetaEndpoints(t *testing.T) {
	env := setupApp(t, true)

	status, body, _ := do(t, env.app, "GET", "/api/v1/meta/actions", "")
	require.Equal(t, fiber.StatusOK, status)
	var actions []handlers.MetaAction
	require.NoError(t, json.Unmarshal(body.Data, &actions))
	require.Len(t, actions, 3)
	assert.Equal(t, models.ActionCreated, actions[0].ID)
	assert.Equal(t, 2, actions[2].Ordinal)

	status, body, _ = do(t, env.app, "GET", "/api/v1/meta/roles", "")
	require.Equal(t, fiber.StatusOK, status)
	var roles []handlers.MetaRole
	require.NoError(t, json.Unmarshal(body.Data, &roles))
	require.Len(t, roles, 3)
	assert.Equal(t, "admin", roles[0].ID)
}
