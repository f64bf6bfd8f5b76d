package server

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"forestlog/internal/config"
	"forestlog/internal/db"
	"forestlog/internal/domain"
	"forestlog/internal/engine"
	"forestlog/internal/engine/auth"
	"forestlog/internal/migrate"
)

type testServer struct {
	URL    string
	Engine engine.Engine
	client *http.Client
	close  func()
}

func (s *testServer) Client() *http.Client { return s.client }
func (s *testServer) Close()               { s.close() }

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	return newTestServerWithConfig(t, config.Default())
}

func newTestServerWithConfig(t *testing.T, cfg *config.Config) *testServer {
	t.Helper()
	auth.PasswordCost = bcrypt.MinCost
	workspace := t.TempDir()
	if _, err := db.EnsureWorkspace(workspace); err != nil {
		t.Fatalf("ensure workspace: %v", err)
	}
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	e := engine.New(conn, cfg)
	e.JWTSecret = []byte("test-secret")
	handler, err := New(Config{Engine: e, BasePath: "/api/v1"})
	if err != nil {
		t.Fatalf("build handler: %v", err)
	}
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	srv := &http.Server{Handler: handler}
	go srv.Serve(ln)
	testSrv := &testServer{
		URL:    "http://" + ln.Addr().String(),
		Engine: e,
		client: &http.Client{},
		close: func() {
			srv.Shutdown(context.Background())
			ln.Close()
			conn.Close()
		},
	}
	t.Cleanup(testSrv.Close)
	return testSrv
}

func doJSON(t *testing.T, client *http.Client, method, url string, body any, headers map[string]string) (*http.Response, []byte) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	res, err := client.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer res.Body.Close()
	data, err := io.ReadAll(res.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return res, data
}

func bearer(token string) map[string]string {
	return map[string]string{"Authorization": "Bearer " + token}
}

func registerUser(t *testing.T, srv *testServer, name string) TokenResponse {
	t.Helper()
	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/api/v1/auth/register", map[string]any{
		"username": name,
		"email":    name + "@example.com",
		"password": "secret123",
	}, nil)
	require.Equal(t, http.StatusCreated, res.StatusCode, string(data))
	var tok TokenResponse
	require.NoError(t, json.Unmarshal(data, &tok))
	require.NotEmpty(t, tok.AccessToken)
	return tok
}

type errorEnvelope struct {
	Error apiErrorBody `json:"error"`
}

func decodeError(t *testing.T, data []byte) apiErrorBody {
	t.Helper()
	var env errorEnvelope
	require.NoError(t, json.Unmarshal(data, &env), string(data))
	return env.Error
}

func TestRegisterLoginAndLog(t *testing.T) {
	srv := newTestServer(t)
	client := srv.Client()
	tok := registerUser(t, srv, "alice")
	assert.Equal(t, "bearer", tok.TokenType)
	assert.Equal(t, "alice", tok.User.Username)

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/api/v1/auth/login", map[string]any{
		"email":    "alice@example.com",
		"password": "secret123",
	}, nil)
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	var login TokenResponse
	require.NoError(t, json.Unmarshal(data, &login))

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/api/v1/auth/me", nil, bearer(login.AccessToken))
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	var me domain.User
	require.NoError(t, json.Unmarshal(data, &me))
	assert.Equal(t, tok.User.ID, me.ID)

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/api/v1/logs", map[string]any{
		"task_text":    "Wrote the <b>quarterly</b> report",
		"effort_level": "oak",
	}, bearer(login.AccessToken))
	require.Equal(t, http.StatusCreated, res.StatusCode, string(data))
	var result LogResultResponse
	require.NoError(t, json.Unmarshal(data, &result))
	assert.Equal(t, "Wrote the quarterly report", result.Log.TaskText)
	assert.NotEmpty(t, result.Log.TreeEmoji)
	assert.GreaterOrEqual(t, result.Log.PointsEarned, 60)
	assert.LessOrEqual(t, result.Log.PointsEarned, 150)
	assert.Equal(t, result.Log.PointsEarned, result.NewTotalPoints)
	assert.Equal(t, 1, result.NewStreak)
	assert.Equal(t, 1, result.NewLevel)
	assert.Nil(t, result.MilestoneEarned)

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/api/v1/streaks", nil, bearer(login.AccessToken))
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	var streaks StreaksResponse
	require.NoError(t, json.Unmarshal(data, &streaks))
	assert.Equal(t, 1, streaks.Daily.CurrentCount)
	assert.Equal(t, 1, streaks.Monthly.CurrentCount)
	assert.Equal(t, 0, streaks.Yearly.CurrentCount)

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/api/v1/logs/today", nil, bearer(login.AccessToken))
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	var today []domain.Log
	require.NoError(t, json.Unmarshal(data, &today))
	assert.Len(t, today, 1)

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/api/v1/logs/week", nil, bearer(login.AccessToken))
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	var week []domain.DayPoints
	require.NoError(t, json.Unmarshal(data, &week))
	require.Len(t, week, 7)
	assert.Equal(t, result.Log.PointsEarned, week[6].Points)

	res, data = doJSON(t, client, http.MethodDelete, srv.URL+"/api/v1/logs/"+result.Log.ID, nil, bearer(login.AccessToken))
	require.Equal(t, http.StatusNoContent, res.StatusCode, string(data))
	res, data = doJSON(t, client, http.MethodDelete, srv.URL+"/api/v1/logs/"+result.Log.ID, nil, bearer(login.AccessToken))
	assert.Equal(t, http.StatusNotFound, res.StatusCode, string(data))
}

func TestRegisterDuplicateConflict(t *testing.T) {
	srv := newTestServer(t)
	registerUser(t, srv, "alice")

	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/api/v1/auth/register", map[string]any{
		"username": "alice",
		"email":    "other@example.com",
		"password": "secret123",
	}, nil)
	require.Equal(t, http.StatusConflict, res.StatusCode, string(data))
	assert.Equal(t, "conflict", decodeError(t, data).Code)
}

func TestLoginWrongPassword(t *testing.T) {
	srv := newTestServer(t)
	registerUser(t, srv, "alice")

	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/api/v1/auth/login", map[string]any{
		"email":    "alice@example.com",
		"password": "wrong-password",
	}, nil)
	require.Equal(t, http.StatusUnauthorized, res.StatusCode, string(data))
	assert.Equal(t, "invalid_credentials", decodeError(t, data).Code)
}

func TestCreateLogValidationEnvelope(t *testing.T) {
	srv := newTestServer(t)
	tok := registerUser(t, srv, "alice")

	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/api/v1/logs", map[string]any{
		"task_text":    "ab",
		"effort_level": "oak",
	}, bearer(tok.AccessToken))
	require.Equal(t, http.StatusUnprocessableEntity, res.StatusCode, string(data))
	body := decodeError(t, data)
	assert.Equal(t, "validation_failed", body.Code)
	assert.Equal(t, "task_text", body.Details["field"])

	res, data = doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/api/v1/logs", map[string]any{
		"task_text":    "valid task",
		"effort_level": "redwood",
	}, bearer(tok.AccessToken))
	require.Equal(t, http.StatusUnprocessableEntity, res.StatusCode, string(data))
	assert.Equal(t, "effort_level", decodeError(t, data).Details["field"])

	res, data = doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/api/v1/logs?limit=500", nil, bearer(tok.AccessToken))
	require.Equal(t, http.StatusUnprocessableEntity, res.StatusCode, string(data))
}

func TestAuthRequired(t *testing.T) {
	srv := newTestServer(t)
	client := srv.Client()

	res, data := doJSON(t, client, http.MethodGet, srv.URL+"/api/v1/streaks", nil, nil)
	require.Equal(t, http.StatusUnauthorized, res.StatusCode, string(data))
	assert.Equal(t, "unauthorized", decodeError(t, data).Code)

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/api/v1/streaks", nil, bearer("not-a-token"))
	require.Equal(t, http.StatusUnauthorized, res.StatusCode, string(data))
	assert.Equal(t, "invalid_credentials", decodeError(t, data).Code)

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/api/v1/health", nil, nil)
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/api/v1/openapi.json", nil, nil)
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	assert.Contains(t, string(data), "bearerAuth")
}

func TestOpenAPIConcurrentRequests(t *testing.T) {
	srv := newTestServer(t)
	client := srv.Client()

	const n = 8
	bodies := make([][]byte, n)
	errs := make([]error, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res, err := client.Get(srv.URL + "/api/v1/openapi.json")
			if err != nil {
				errs[i] = err
				return
			}
			defer res.Body.Close()
			bodies[i], errs[i] = io.ReadAll(res.Body)
		}(i)
	}
	wg.Wait()

	for i := 0; i < n; i++ {
		require.NoError(t, errs[i])
		assert.JSONEq(t, string(bodies[0]), string(bodies[i]))
	}
	assert.Contains(t, string(bodies[0]), "bearerAuth")
}

func TestShareFlow(t *testing.T) {
	srv := newTestServer(t)
	client := srv.Client()
	owner := registerUser(t, srv, "alice")
	fan := registerUser(t, srv, "bob")

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/api/v1/share", map[string]any{"share_type": "profile"}, bearer(owner.AccessToken))
	require.Equal(t, http.StatusForbidden, res.StatusCode, string(data))
	assert.Equal(t, "forbidden", decodeError(t, data).Code)

	res, data = doJSON(t, client, http.MethodPatch, srv.URL+"/api/v1/auth/me", map[string]any{"is_public": true}, bearer(owner.AccessToken))
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/api/v1/logs", map[string]any{
		"task_text":    "Planted a seed",
		"effort_level": "seed",
	}, bearer(owner.AccessToken))
	require.Equal(t, http.StatusCreated, res.StatusCode, string(data))

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/api/v1/share", map[string]any{"share_type": "weekly"}, bearer(owner.AccessToken))
	require.Equal(t, http.StatusCreated, res.StatusCode, string(data))
	var share domain.SharedForest
	require.NoError(t, json.Unmarshal(data, &share))
	assert.Len(t, share.ShareToken, 8)
	assert.Equal(t, "weekly", share.ShareType)

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/api/v1/share/"+share.ShareToken, nil, nil)
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	var forest PublicForestResponse
	require.NoError(t, json.Unmarshal(data, &forest))
	assert.Equal(t, "alice", forest.Username)
	assert.Equal(t, 1, forest.ViewCount)
	assert.Equal(t, 1, forest.DailyStreak)
	require.Len(t, forest.RecentTrees, 1)
	assert.NotEmpty(t, forest.RecentTrees[0].Tree)

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/api/v1/share/"+share.ShareToken+"/like", nil, bearer(fan.AccessToken))
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/api/v1/share/"+share.ShareToken+"/like", nil, bearer(fan.AccessToken))
	require.Equal(t, http.StatusConflict, res.StatusCode, string(data))
	assert.Equal(t, "already_liked", decodeError(t, data).Code)

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/api/v1/share/"+share.ShareToken+"/like", nil, nil)
	require.Equal(t, http.StatusUnauthorized, res.StatusCode, string(data))

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/api/v1/share/"+share.ShareToken, nil, nil)
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	require.NoError(t, json.Unmarshal(data, &forest))
	assert.Equal(t, 2, forest.ViewCount)
	assert.Equal(t, 1, forest.Likes)

	res, data = doJSON(t, client, http.MethodDelete, srv.URL+"/api/v1/share/"+share.ShareToken, nil, bearer(fan.AccessToken))
	require.Equal(t, http.StatusNotFound, res.StatusCode, string(data))
	res, data = doJSON(t, client, http.MethodDelete, srv.URL+"/api/v1/share/"+share.ShareToken, nil, bearer(owner.AccessToken))
	require.Equal(t, http.StatusNoContent, res.StatusCode, string(data))

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/api/v1/share/"+share.ShareToken, nil, nil)
	require.Equal(t, http.StatusNotFound, res.StatusCode, string(data))
}

func TestAPIKeyAuth(t *testing.T) {
	srv := newTestServer(t)
	client := srv.Client()
	tok := registerUser(t, srv, "alice")

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/api/v1/me/api-keys", map[string]any{"name": "cli"}, bearer(tok.AccessToken))
	require.Equal(t, http.StatusCreated, res.StatusCode, string(data))
	var created APIKeyCreatedResponse
	require.NoError(t, json.Unmarshal(data, &created))
	require.True(t, strings.HasPrefix(created.Key, "fl_"))

	keyHeader := map[string]string{"X-Api-Key": created.Key}
	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/api/v1/streaks", nil, keyHeader)
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/api/v1/me/api-keys", nil, keyHeader)
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	var keys []map[string]any
	require.NoError(t, json.Unmarshal(data, &keys))
	require.Len(t, keys, 1)
	assert.NotContains(t, keys[0], "key_hash")

	res, data = doJSON(t, client, http.MethodDelete, srv.URL+"/api/v1/me/api-keys/"+created.ID, nil, bearer(tok.AccessToken))
	require.Equal(t, http.StatusNoContent, res.StatusCode, string(data))

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/api/v1/streaks", nil, keyHeader)
	require.Equal(t, http.StatusUnauthorized, res.StatusCode, string(data))
}

func TestEventsPagination(t *testing.T) {
	srv := newTestServer(t)
	client := srv.Client()
	tok := registerUser(t, srv, "alice")
	for _, task := range []string{"first task", "second task"} {
		res, data := doJSON(t, client, http.MethodPost, srv.URL+"/api/v1/logs", map[string]any{
			"task_text":    task,
			"effort_level": "seed",
		}, bearer(tok.AccessToken))
		require.Equal(t, http.StatusCreated, res.StatusCode, string(data))
	}

	res, data := doJSON(t, client, http.MethodGet, srv.URL+"/api/v1/events?type=log.created&limit=1", nil, bearer(tok.AccessToken))
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	var page paginatedEvents
	require.NoError(t, json.Unmarshal(data, &page))
	require.Len(t, page.Items, 1)
	require.NotEmpty(t, page.NextCursor)
	first := page.Items[0]
	assert.Equal(t, "log.created", first.Type)

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/api/v1/events?type=log.created&limit=1&cursor="+page.NextCursor, nil, bearer(tok.AccessToken))
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	page = paginatedEvents{}
	require.NoError(t, json.Unmarshal(data, &page))
	require.Len(t, page.Items, 1)
	assert.Less(t, page.Items[0].ID, first.ID)
	assert.Empty(t, page.NextCursor)

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/api/v1/events?cursor=abc", nil, bearer(tok.AccessToken))
	require.Equal(t, http.StatusBadRequest, res.StatusCode, string(data))
}

func TestMetricsEndpoint(t *testing.T) {
	srv := newTestServer(t)
	res, data := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/api/v1/health", nil, nil)
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))

	res, data = doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/metrics", nil, nil)
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	assert.Contains(t, string(data), "forestlog_api_requests_total")
}

func TestWebhookDelivery(t *testing.T) {
	type delivery struct {
		header http.Header
		body   []byte
	}
	var (
		mu       sync.Mutex
		received []delivery
	)
	receiver := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		mu.Lock()
		received = append(received, delivery{header: r.Header.Clone(), body: body})
		mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
	}))
	defer receiver.Close()

	cfg := config.Default()
	cfg.Webhooks = []config.WebhookConfig{{
		URL:    receiver.URL,
		Events: []string{"log.created"},
		Secret: "shh",
	}}
	srv := newTestServerWithConfig(t, cfg)
	d := newWebhookDispatcher(srv.Engine, nil)
	require.NotNil(t, d)
	ctx := context.Background()
	d.dispatchAll(ctx)

	tok := registerUser(t, srv, "alice")
	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/api/v1/logs", map[string]any{
		"task_text":    "Shipped webhooks",
		"effort_level": "sapling",
	}, bearer(tok.AccessToken))
	require.Equal(t, http.StatusCreated, res.StatusCode, string(data))

	d.dispatchAll(ctx)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, received, 1)
	got := received[0]
	assert.Equal(t, "log.created", got.header.Get("X-Forestlog-Event"))
	assert.NotEmpty(t, got.header.Get("X-Forestlog-Delivery"))

	mac := hmac.New(sha256.New, []byte("shh"))
	mac.Write(got.body)
	assert.Equal(t, "sha256="+hex.EncodeToString(mac.Sum(nil)), got.header.Get("X-Forestlog-Signature"))

	var evt webhookEvent
	require.NoError(t, json.Unmarshal(got.body, &evt))
	assert.Equal(t, tok.User.ID, evt.UserID)
	assert.Equal(t, "log", evt.EntityKind)
}

func TestWebhookDispatcherDisabledWithoutHooks(t *testing.T) {
	srv := newTestServer(t)
	assert.Nil(t, newWebhookDispatcher(srv.Engine, nil))
}
