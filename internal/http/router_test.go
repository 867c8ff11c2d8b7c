package httpx

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/splax/userdesk/internal/domain"
	"github.com/splax/userdesk/internal/repository"
	"github.com/splax/userdesk/internal/repository/memory"
	"github.com/splax/userdesk/internal/service/user"
	"github.com/splax/userdesk/internal/ws"
)

type rateLimitCall struct {
	key    string
	limit  int
	window time.Duration
}

type rateLimiterStub struct {
	mu      sync.Mutex
	calls   []rateLimitCall
	allowFn func(key string, limit int, window time.Duration) rateDecision
	closed  bool
}

func newRateLimiterStub() *rateLimiterStub {
	return &rateLimiterStub{}
}

func (rl *rateLimiterStub) Allow(key string, limit int, window time.Duration) rateDecision {
	rl.mu.Lock()
	rl.calls = append(rl.calls, rateLimitCall{key: key, limit: limit, window: window})
	fn := rl.allowFn
	rl.mu.Unlock()
	if fn != nil {
		return fn(key, limit, window)
	}
	return rateDecision{allowed: true, count: 1, windowEnd: time.Now().Add(window)}
}

func (rl *rateLimiterStub) Close() {
	rl.mu.Lock()
	rl.closed = true
	rl.mu.Unlock()
}

func (rl *rateLimiterStub) callCount() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.calls)
}

var errStoreDown = errors.New("store down")

type brokenRepository struct {
	*memory.Store
}

func (brokenRepository) ListUsers(ctx context.Context) ([]domain.User, error) {
	return nil, errStoreDown
}

func (brokenRepository) GetUserByID(ctx context.Context, id string) (*domain.User, error) {
	return nil, errStoreDown
}

type panickingRepository struct {
	*memory.Store
}

func (panickingRepository) ListUsers(ctx context.Context) ([]domain.User, error) {
	panic("list exploded")
}

type routerFixture struct {
	router  *Router
	store   *memory.Store
	hub     *ws.Hub
	limiter *rateLimiterStub
}

func newFixture(t *testing.T, opts Options) routerFixture {
	t.Helper()
	return newFixtureWithRepo(t, nil, opts)
}

func newFixtureWithRepo(t *testing.T, wrap func(*memory.Store) repository.UserRepository, opts Options) routerFixture {
	t.Helper()
	store := memory.New()
	var repo repository.UserRepository = store
	if wrap != nil {
		repo = wrap(store)
	}
	hub := ws.NewHub()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	limiter := newRateLimiterStub()
	if opts.Environment == "" {
		opts.Environment = "test"
	}
	router, err := NewRouter(log, user.New(repo, hub, log), hub, limiter, opts)
	if err != nil {
		t.Fatalf("NewRouter returned error: %v", err)
	}
	t.Cleanup(func() {
		router.Close()
		hub.Close()
	})
	return routerFixture{router: router, store: store, hub: hub, limiter: limiter}
}

func (f routerFixture) do(t *testing.T, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rr := httptest.NewRecorder()
	f.router.ServeHTTP(rr, req)
	return rr
}

func decodeBodyMap(t *testing.T, rr *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var payload map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &payload); err != nil {
		t.Fatalf("response is not JSON: %v (%q)", err, rr.Body.String())
	}
	return payload
}

func expectFailure(t *testing.T, rr *httptest.ResponseRecorder, status int, message string) map[string]any {
	t.Helper()
	if rr.Code != status {
		t.Fatalf("expected status %d, got %d: %s", status, rr.Code, rr.Body.String())
	}
	payload := decodeBodyMap(t, rr)
	if payload["success"] != false {
		t.Fatalf("expected success=false, got %v", payload["success"])
	}
	if payload["message"] != message {
		t.Fatalf("expected message %q, got %v", message, payload["message"])
	}
	return payload
}

func TestListUsers(t *testing.T) {
	f := newFixture(t, Options{})

	rr := f.do(t, http.MethodGet, "/api/users", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if ct := rr.Header().Get("Content-Type"); !strings.HasPrefix(ct, "application/json") {
		t.Fatalf("unexpected content type %q", ct)
	}
	payload := decodeBodyMap(t, rr)
	if payload["success"] != true || payload["count"] != float64(2) {
		t.Fatalf("unexpected payload: %v", payload)
	}
	data, ok := payload["data"].([]any)
	if !ok || len(data) != 2 {
		t.Fatalf("unexpected data: %v", payload["data"])
	}
	first := data[0].(map[string]any)
	if first["id"] != "1" || first["email"] != "john@example.com" || first["createdAt"] != "2023-01-01T00:00:00Z" {
		t.Fatalf("unexpected first user: %v", first)
	}
	if _, ok := first["updatedAt"]; ok {
		t.Fatalf("updatedAt should be absent before the first update")
	}
}

func TestListUsersEmptyIsArray(t *testing.T) {
	f := newFixture(t, Options{})
	f.store.Reset()
	for _, id := range []string{"1", "2"} {
		if rr := f.do(t, http.MethodDelete, "/api/users/"+id, ""); rr.Code != http.StatusOK {
			t.Fatalf("delete %s: %d", id, rr.Code)
		}
	}
	rr := f.do(t, http.MethodGet, "/api/users", "")
	if !strings.Contains(rr.Body.String(), `"data":[]`) {
		t.Fatalf("expected empty array, got %s", rr.Body.String())
	}
}

func TestGetUser(t *testing.T) {
	f := newFixture(t, Options{})

	rr := f.do(t, http.MethodGet, "/api/users/2", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	data := decodeBodyMap(t, rr)["data"].(map[string]any)
	if data["name"] != "Jane Smith" || data["age"] != float64(30) {
		t.Fatalf("unexpected user: %v", data)
	}

	expectFailure(t, f.do(t, http.MethodGet, "/api/users/404", ""), http.StatusNotFound, "User not found")
}

func TestBlankIDIsRejectedBeforeHandler(t *testing.T) {
	f := newFixture(t, Options{})

	for _, method := range []string{http.MethodGet, http.MethodPut, http.MethodDelete} {
		rr := f.do(t, method, "/api/users/%20%20", `{"name":"x"}`)
		expectFailure(t, rr, http.StatusBadRequest, "User ID is required")
	}
	if n, _ := f.store.CountUsers(context.Background()); n != 2 {
		t.Fatalf("blank-id requests mutated the store")
	}
}

func TestCreateUser(t *testing.T) {
	f := newFixture(t, Options{})

	rr := f.do(t, http.MethodPost, "/api/users", `{"name":" <i>Alice</i> ","email":"alice@example.com","age":"31"}`)
	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rr.Code, rr.Body.String())
	}
	payload := decodeBodyMap(t, rr)
	if payload["message"] != "User created successfully" {
		t.Fatalf("unexpected message: %v", payload["message"])
	}
	data := payload["data"].(map[string]any)
	if data["id"] != "3" || data["name"] != "iAlice/i" || data["age"] != float64(31) {
		t.Fatalf("unexpected created user: %v", data)
	}

	got := decodeBodyMap(t, f.do(t, http.MethodGet, "/api/users/3", ""))["data"].(map[string]any)
	if got["email"] != "alice@example.com" || got["createdAt"] != data["createdAt"] {
		t.Fatalf("round trip mismatch: %v vs %v", got, data)
	}
}

func TestCreateUserFailures(t *testing.T) {
	f := newFixture(t, Options{})

	payload := expectFailure(t, f.do(t, http.MethodPost, "/api/users", `{"name":"   "}`), http.StatusBadRequest, "Validation failed")
	errs, _ := payload["errors"].([]any)
	if len(errs) != 2 || errs[0] != "name is required" || errs[1] != "email is required" {
		t.Fatalf("unexpected errors: %v", payload["errors"])
	}

	expectFailure(t, f.do(t, http.MethodPost, "/api/users", ""), http.StatusBadRequest, "Validation failed")
	expectFailure(t, f.do(t, http.MethodPost, "/api/users", `{"name":"Bob","email":"bob@x"}`), http.StatusBadRequest, "Invalid email format")
	expectFailure(t, f.do(t, http.MethodPost, "/api/users", `{"name":"Bob","email":"john@example.com"}`), http.StatusBadRequest, "Email already exists")
	expectFailure(t, f.do(t, http.MethodPost, "/api/users", `{"name":`), http.StatusBadRequest, "Invalid JSON body")
	expectFailure(t, f.do(t, http.MethodPost, "/api/users", `[1,2]`), http.StatusBadRequest, "Invalid JSON body")

	payload = expectFailure(t, f.do(t, http.MethodPost, "/api/users", `{"name":"Bob","email":"bob@x.com","age":"old"}`), http.StatusBadRequest, "Validation failed")
	if errs, _ := payload["errors"].([]any); len(errs) != 1 || errs[0] != "age must be a number" {
		t.Fatalf("unexpected age errors: %v", payload["errors"])
	}

	if n, _ := f.store.CountUsers(context.Background()); n != 2 {
		t.Fatalf("failed creates mutated the store: %d", n)
	}
}

func TestAgeIsCheckedAfterOtherFields(t *testing.T) {
	f := newFixture(t, Options{})

	payload := expectFailure(t, f.do(t, http.MethodPost, "/api/users", `{"age":"abc"}`), http.StatusBadRequest, "Validation failed")
	errs, _ := payload["errors"].([]any)
	if len(errs) != 2 || errs[0] != "name is required" || errs[1] != "email is required" {
		t.Fatalf("required fields should be reported before age: %v", payload["errors"])
	}
	expectFailure(t, f.do(t, http.MethodPost, "/api/users", `{"name":"Bob","email":"bob@x","age":"abc"}`), http.StatusBadRequest, "Invalid email format")
	expectFailure(t, f.do(t, http.MethodPost, "/api/users", `{"name":"Bob","email":"john@example.com","age":"abc"}`), http.StatusBadRequest, "Email already exists")

	expectFailure(t, f.do(t, http.MethodPut, "/api/users/999", `{"age":"abc"}`), http.StatusNotFound, "User not found")
	expectFailure(t, f.do(t, http.MethodPut, "/api/users/1", `{"email":"nope","age":"abc"}`), http.StatusBadRequest, "Invalid email format")
	payload = expectFailure(t, f.do(t, http.MethodPut, "/api/users/1", `{"name":"Renamed","age":"abc"}`), http.StatusBadRequest, "Validation failed")
	if errs, _ := payload["errors"].([]any); len(errs) != 1 || errs[0] != "age must be a number" {
		t.Fatalf("unexpected age errors: %v", payload["errors"])
	}
	if u, _ := f.store.GetUserByID(context.Background(), "1"); u.Name != "John Doe" {
		t.Fatalf("rejected update was applied: %+v", u)
	}
}

// stalledSubscriber holds every Send until release is closed.
type stalledSubscriber struct {
	release chan struct{}
}

func (s stalledSubscriber) Send([]byte) error {
	<-s.release
	return nil
}

func (stalledSubscriber) Close() {}

func TestWritesDoNotWaitForSlowEventSubscribers(t *testing.T) {
	f := newFixture(t, Options{})
	slow := stalledSubscriber{release: make(chan struct{})}
	defer close(slow.release)
	f.hub.Register(user.Topic, slow)

	start := time.Now()
	for i, email := range []string{"first@x.com", "second@x.com"} {
		body := `{"name":"Writer","email":"` + email + `"}`
		if rr := f.do(t, http.MethodPost, "/api/users", body); rr.Code != http.StatusCreated {
			t.Fatalf("create %d: expected 201, got %d", i, rr.Code)
		}
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Fatalf("creates were held up by a stalled subscriber for %v", elapsed)
	}
}

func TestUpdateUser(t *testing.T) {
	f := newFixture(t, Options{})

	rr := f.do(t, http.MethodPut, "/api/users/1", `{"age":40,"name":""}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	payload := decodeBodyMap(t, rr)
	if payload["message"] != "User updated successfully" {
		t.Fatalf("unexpected message: %v", payload["message"])
	}
	data := payload["data"].(map[string]any)
	if data["name"] != "John Doe" || data["age"] != float64(40) {
		t.Fatalf("unexpected updated user: %v", data)
	}
	if _, ok := data["updatedAt"]; !ok {
		t.Fatalf("updatedAt missing after update")
	}

	expectFailure(t, f.do(t, http.MethodPut, "/api/users/99", `{"name":"Ghost"}`), http.StatusNotFound, "User not found")
	expectFailure(t, f.do(t, http.MethodPut, "/api/users/1", `{"email":"jane@example.com"}`), http.StatusBadRequest, "Email already exists")
	expectFailure(t, f.do(t, http.MethodPut, "/api/users/1", `{"email":"nope"}`), http.StatusBadRequest, "Invalid email format")
	expectFailure(t, f.do(t, http.MethodPut, "/api/users/1", `{"age":true}`), http.StatusBadRequest, "Validation failed")

	if rr := f.do(t, http.MethodPut, "/api/users/1", `{"email":"john@example.com"}`); rr.Code != http.StatusOK {
		t.Fatalf("re-submitting own email should succeed, got %d", rr.Code)
	}
}

func TestDeleteUser(t *testing.T) {
	f := newFixture(t, Options{})

	rr := f.do(t, http.MethodDelete, "/api/users/2", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	payload := decodeBodyMap(t, rr)
	data := payload["data"].(map[string]any)
	if payload["message"] != "User deleted successfully" || data["id"] != "2" || data["email"] != "jane@example.com" {
		t.Fatalf("unexpected delete payload: %v", payload)
	}
	expectFailure(t, f.do(t, http.MethodDelete, "/api/users/2", ""), http.StatusNotFound, "User not found")
	expectFailure(t, f.do(t, http.MethodGet, "/api/users/2", ""), http.StatusNotFound, "User not found")
}

func TestUserLifecycleScenario(t *testing.T) {
	f := newFixture(t, Options{})

	created := decodeBodyMap(t, f.do(t, http.MethodPost, "/api/users", `{"name":"A","email":"a@x.com"}`))["data"].(map[string]any)
	id := created["id"].(string)

	expectFailure(t, f.do(t, http.MethodPost, "/api/users", `{"name":"A2","email":"a@x.com"}`), http.StatusBadRequest, "Email already exists")

	if rr := f.do(t, http.MethodPut, "/api/users/"+id, `{"email":"a@x.com"}`); rr.Code != http.StatusOK {
		t.Fatalf("no-op email update failed: %d", rr.Code)
	}
	if rr := f.do(t, http.MethodDelete, "/api/users/"+id, ""); rr.Code != http.StatusOK {
		t.Fatalf("delete failed: %d", rr.Code)
	}
	expectFailure(t, f.do(t, http.MethodGet, "/api/users/"+id, ""), http.StatusNotFound, "User not found")

	list := decodeBodyMap(t, f.do(t, http.MethodGet, "/api/users", ""))
	if list["count"] != float64(2) || len(list["data"].([]any)) != 2 {
		t.Fatalf("unexpected final list: %v", list)
	}
}

func TestFaultResponses(t *testing.T) {
	broken := func(s *memory.Store) repository.UserRepository { return brokenRepository{s} }

	dev := newFixtureWithRepo(t, broken, Options{Environment: "development"})
	payload := expectFailure(t, dev.do(t, http.MethodGet, "/api/users", ""), http.StatusInternalServerError, "Server error")
	if detail, _ := payload["error"].(string); !strings.Contains(detail, "store down") {
		t.Fatalf("expected error detail in development, got %v", payload["error"])
	}

	prod := newFixtureWithRepo(t, broken, Options{Environment: "production"})
	payload = expectFailure(t, prod.do(t, http.MethodGet, "/api/users/1", ""), http.StatusInternalServerError, "Server error")
	if _, ok := payload["error"]; ok {
		t.Fatalf("error detail leaked outside development: %v", payload)
	}
}

func TestPanicIsRecovered(t *testing.T) {
	f := newFixtureWithRepo(t, func(s *memory.Store) repository.UserRepository { return panickingRepository{s} }, Options{Environment: "production"})

	expectFailure(t, f.do(t, http.MethodGet, "/api/users", ""), http.StatusInternalServerError, "Server error")

	rr := f.do(t, http.MethodGet, "/users", "")
	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500 page, got %d", rr.Code)
	}
	body := rr.Body.String()
	if !strings.Contains(body, "Server Error") || !strings.Contains(body, "An unexpected error occurred. Please try again later.") {
		t.Fatalf("unexpected error page: %s", body)
	}
	if strings.Contains(body, "list exploded") {
		t.Fatalf("panic detail leaked outside development")
	}
}

func TestHealth(t *testing.T) {
	f := newFixture(t, Options{})

	rr := f.do(t, http.MethodGet, "/health", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	payload := decodeBodyMap(t, rr)
	if payload["status"] != "ok" || payload["environment"] != "test" {
		t.Fatalf("unexpected health payload: %v", payload)
	}
	if _, ok := payload["uptime"].(float64); !ok {
		t.Fatalf("uptime missing: %v", payload)
	}
	if ts, _ := payload["timestamp"].(string); ts == "" {
		t.Fatalf("timestamp missing")
	} else if _, err := time.Parse(time.RFC3339Nano, ts); err != nil {
		t.Fatalf("timestamp not RFC3339: %v", err)
	}
}

func TestHealthReportsStoreFailure(t *testing.T) {
	f := newFixture(t, Options{StoreHealth: func(context.Context) error { return errStoreDown }})

	rr := f.do(t, http.MethodGet, "/health", "")
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rr.Code)
	}
	payload := decodeBodyMap(t, rr)
	if payload["status"] != "degraded" {
		t.Fatalf("unexpected status: %v", payload["status"])
	}
	store := payload["components"].(map[string]any)["store"].(map[string]any)
	if store["status"] != "down" {
		t.Fatalf("unexpected store component: %v", store)
	}
}

func TestAPIDocs(t *testing.T) {
	f := newFixture(t, Options{})

	payload := decodeBodyMap(t, f.do(t, http.MethodGet, "/api", ""))
	if payload["name"] != "User Management API" || payload["version"] != "1.0.0" {
		t.Fatalf("unexpected docs: %v", payload)
	}
	endpoints, _ := payload["endpoints"].([]any)
	if len(endpoints) != 5 {
		t.Fatalf("expected 5 endpoints, got %d", len(endpoints))
	}
	last := endpoints[4].(map[string]any)
	if last["method"] != "DELETE" || last["path"] != "/api/users/:id" {
		t.Fatalf("unexpected endpoint: %v", last)
	}
}

func TestNotFound(t *testing.T) {
	f := newFixture(t, Options{})

	rr := f.do(t, http.MethodGet, "/nowhere", "")
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "404 - Not Found") || !strings.Contains(rr.Body.String(), "The page you are looking for does not exist.") {
		t.Fatalf("unexpected 404 page: %s", rr.Body.String())
	}
	expectFailure(t, f.do(t, http.MethodGet, "/api/nowhere", ""), http.StatusNotFound, "Not found")
}

func TestWriteRateLimit(t *testing.T) {
	f := newFixture(t, Options{WriteRateLimit: 5})
	reset := time.Unix(1_950_000_000, 0)
	f.limiter.allowFn = func(key string, limit int, window time.Duration) rateDecision {
		return rateDecision{allowed: false, count: limit, windowEnd: reset}
	}

	rr := f.do(t, http.MethodPost, "/api/users", `{"name":"A","email":"a@x.com"}`)
	expectFailure(t, rr, http.StatusTooManyRequests, "Rate limit exceeded")
	if got := rr.Header().Get("X-RateLimit-Limit"); got != "5" {
		t.Fatalf("unexpected limit header %q", got)
	}
	if got := rr.Header().Get("X-RateLimit-Remaining"); got != "0" {
		t.Fatalf("unexpected remaining header %q", got)
	}
	if got := rr.Header().Get("X-RateLimit-Reset"); got != "1950000000" {
		t.Fatalf("unexpected reset header %q", got)
	}

	f.limiter.mu.Lock()
	call := f.limiter.calls[0]
	f.limiter.mu.Unlock()
	if !strings.HasPrefix(call.key, "ip:") || call.limit != 5 || call.window != time.Minute {
		t.Fatalf("unexpected limiter call: %+v", call)
	}

	if rr := f.do(t, http.MethodGet, "/api/users", ""); rr.Code != http.StatusOK {
		t.Fatalf("reads must not be rate limited, got %d", rr.Code)
	}
	if f.limiter.callCount() != 1 {
		t.Fatalf("expected limiter consulted only for the write, got %d calls", f.limiter.callCount())
	}
	if n, _ := f.store.CountUsers(context.Background()); n != 2 {
		t.Fatalf("limited request reached the store")
	}
}

func TestRateLimitDisabled(t *testing.T) {
	f := newFixture(t, Options{})

	if rr := f.do(t, http.MethodPost, "/api/users", `{"name":"A","email":"a@x.com"}`); rr.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", rr.Code)
	}
	if f.limiter.callCount() != 0 {
		t.Fatalf("limiter consulted while disabled")
	}
}

func TestRequestIDHeader(t *testing.T) {
	f := newFixture(t, Options{})

	rr := f.do(t, http.MethodGet, "/health", "")
	if id := rr.Header().Get("X-Request-ID"); len(id) != 36 {
		t.Fatalf("expected generated uuid request id, got %q", id)
	}

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("X-Request-ID", "abc-123")
	rr = httptest.NewRecorder()
	f.router.ServeHTTP(rr, req)
	if id := rr.Header().Get("X-Request-ID"); id != "abc-123" {
		t.Fatalf("expected echoed request id, got %q", id)
	}
}

func TestCORSPreflight(t *testing.T) {
	f := newFixture(t, Options{})

	req := httptest.NewRequest(http.MethodOptions, "/api/users", nil)
	req.Header.Set("Origin", "http://example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rr := httptest.NewRecorder()
	f.router.ServeHTTP(rr, req)
	if got := rr.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Fatalf("unexpected allow origin %q", got)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	f := newFixture(t, Options{})
	f.do(t, http.MethodGet, "/api/users/1", "")

	rr := f.do(t, http.MethodGet, "/metrics", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	body := rr.Body.String()
	if !strings.Contains(body, "userdesk_users_live 2") {
		t.Fatalf("users gauge missing: %s", body)
	}
	if !strings.Contains(body, `userdesk_api_http_requests_total{method="GET",route="/api/users/{id}",status="200"} 1`) {
		t.Fatalf("request counter missing: %s", body)
	}
}

func TestUserEventsStream(t *testing.T) {
	f := newFixture(t, Options{})
	srv := httptest.NewServer(f.router)
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/users"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial websocket: %v", err)
	}
	defer conn.Close()

	deadline := time.Now().Add(2 * time.Second)
	for f.hub.Subscribers(user.Topic) == 0 {
		if time.Now().After(deadline) {
			t.Fatalf("websocket client never registered")
		}
		time.Sleep(10 * time.Millisecond)
	}

	resp, err := http.Post(srv.URL+"/api/users", "application/json", strings.NewReader(`{"name":"Streamed","email":"s@x.com"}`))
	if err != nil {
		t.Fatalf("create over http: %v", err)
	}
	resp.Body.Close()

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read event: %v", err)
	}
	var event struct {
		Type string      `json:"type"`
		Data domain.User `json:"data"`
		At   string      `json:"at"`
	}
	if err := json.Unmarshal(msg, &event); err != nil {
		t.Fatalf("decode event: %v", err)
	}
	if event.Type != user.EventCreated || event.Data.Email != "s@x.com" || event.At == "" {
		t.Fatalf("unexpected event: %+v", event)
	}
}

func TestParseAge(t *testing.T) {
	cases := []struct {
		in      any
		want    *int
		wantErr bool
	}{
		{in: nil},
		{in: "", want: nil},
		{in: json.Number("42"), want: intRef(42)},
		{in: json.Number("42.9"), want: intRef(42)},
		{in: " 7 ", want: intRef(7)},
		{in: "seven", wantErr: true},
		{in: true, wantErr: true},
		{in: json.Number("1e20"), wantErr: true},
	}
	for _, tc := range cases {
		got, err := parseAge(tc.in)
		if tc.wantErr {
			if !errors.Is(err, errAgeNotNumber) {
				t.Fatalf("parseAge(%v): expected age error, got %v", tc.in, err)
			}
			continue
		}
		if err != nil {
			t.Fatalf("parseAge(%v): unexpected error %v", tc.in, err)
		}
		if (got == nil) != (tc.want == nil) || (got != nil && *got != *tc.want) {
			t.Fatalf("parseAge(%v) = %v, want %v", tc.in, got, tc.want)
		}
	}
}

func intRef(n int) *int { return &n }
