package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/efreitasn/marketsim/internal/domain"
	"github.com/efreitasn/marketsim/internal/engine"
	"github.com/efreitasn/marketsim/internal/publish"
	"github.com/efreitasn/marketsim/internal/service"
	"github.com/efreitasn/marketsim/internal/store"
)

// testEnv bundles all dependencies for handler integration tests.
type testEnv struct {
	router http.Handler
	hub    *Hub
	ledger store.Ledger
}

func newTestEnv() *testEnv {
	return newTestEnvWithLedger(store.NewMemoryLedger())
}

func newTestEnvWithLedger(ledger store.Ledger) *testEnv {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	hub := NewHub(logger)

	agentSvc := service.NewAgentService(ledger, 1)
	simSvc := service.NewSimulationService(ledger, engine.NewGenerator(1), hub, 2, logger)
	behaviorSvc := service.NewBehaviorService(store.NewMemoryBehaviorStore())

	return &testEnv{
		router: NewRouter(agentSvc, simSvc, behaviorSvc, hub, []string{"*"}, logger),
		hub:    hub,
		ledger: ledger,
	}
}

// doJSON sends a JSON request and returns the recorder.
func (env *testEnv) doJSON(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rr := httptest.NewRecorder()
	env.router.ServeHTTP(rr, req)
	return rr
}

// doRaw sends a raw request with optional content-type override.
func (env *testEnv) doRaw(t *testing.T, method, path, contentType, rawBody string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(rawBody))
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	rr := httptest.NewRecorder()
	env.router.ServeHTTP(rr, req)
	return rr
}

// decodeJSON decodes the response body into v.
func decodeJSON(t *testing.T, rr *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.NewDecoder(rr.Body).Decode(v); err != nil {
		t.Fatalf("decode response: %v (body: %s)", err, rr.Body.String())
	}
}

func expectStatus(t *testing.T, rr *httptest.ResponseRecorder, want int) {
	t.Helper()
	if rr.Code != want {
		t.Fatalf("expected %d, got %d: %s", want, rr.Code, rr.Body.String())
	}
}

func expectError(t *testing.T, rr *httptest.ResponseRecorder, status int, code string) {
	t.Helper()
	expectStatus(t, rr, status)
	var resp errorResponse
	decodeJSON(t, rr, &resp)
	if resp.Error != code {
		t.Fatalf("error = %q, want %q", resp.Error, code)
	}
}

// createAgent creates an agent via the API and returns the response.
func (env *testEnv) createAgent(t *testing.T, name string) agentResponse {
	t.Helper()
	rr := env.doJSON(t, http.MethodPost, "/agents", map[string]any{
		"name":       name,
		"agent_type": "technical",
	})
	expectStatus(t, rr, http.StatusCreated)
	var a agentResponse
	decodeJSON(t, rr, &a)
	return a
}

func TestHealthzAndRoot(t *testing.T) {
	env := newTestEnv()

	rr := env.doJSON(t, http.MethodGet, "/healthz", nil)
	expectStatus(t, rr, http.StatusOK)

	rr = env.doJSON(t, http.MethodGet, "/", nil)
	expectStatus(t, rr, http.StatusOK)
	var body map[string]string
	decodeJSON(t, rr, &body)
	if body["message"] == "" {
		t.Fatal("expected a welcome message")
	}
}

func TestCreateAgent(t *testing.T) {
	env := newTestEnv()

	rr := env.doJSON(t, http.MethodPost, "/agents", map[string]any{
		"name":       "alice",
		"agent_type": "intelligent",
		"balance":    500.25,
	})
	expectStatus(t, rr, http.StatusCreated)

	var a agentResponse
	decodeJSON(t, rr, &a)
	if a.AgentID == "" || a.Name != "alice" || a.AgentType != "intelligent" || a.Balance != 500.25 {
		t.Fatalf("unexpected agent: %+v", a)
	}
	if _, err := time.Parse(time.RFC3339Nano, a.CreatedAt); err != nil {
		t.Fatalf("created_at %q is not RFC 3339: %v", a.CreatedAt, err)
	}

	rr = env.doJSON(t, http.MethodGet, "/agents/"+a.AgentID, nil)
	expectStatus(t, rr, http.StatusOK)
}

func TestCreateAgent_DefaultBalance(t *testing.T) {
	env := newTestEnv()
	a := env.createAgent(t, "bob")
	if a.Balance != 10000 {
		t.Fatalf("balance = %v, want 10000", a.Balance)
	}
}

func TestCreateAgent_Invalid(t *testing.T) {
	env := newTestEnv()

	tests := []struct {
		name        string
		contentType string
		body        string
		status      int
		code        string
	}{
		{"wrong content type", "text/plain", `{"name":"x"}`, http.StatusBadRequest, "invalid_request"},
		{"malformed json", "application/json", `{"name":`, http.StatusBadRequest, "invalid_request"},
		{"unknown field", "application/json", `{"name":"x","agent_type":"thesis","extra":1}`, http.StatusBadRequest, "invalid_request"},
		{"missing name", "application/json", `{"agent_type":"thesis"}`, http.StatusBadRequest, "validation_error"},
		{"unknown type", "application/json", `{"name":"x","agent_type":"quant"}`, http.StatusBadRequest, "validation_error"},
		{"negative balance", "application/json", `{"name":"x","agent_type":"thesis","balance":-5}`, http.StatusBadRequest, "validation_error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := env.doRaw(t, http.MethodPost, "/agents", tt.contentType, tt.body)
			expectError(t, rr, tt.status, tt.code)
		})
	}
}

func TestGetAgent_NotFound(t *testing.T) {
	env := newTestEnv()
	expectError(t, env.doJSON(t, http.MethodGet, "/agents/missing", nil), http.StatusNotFound, "agent_not_found")
	expectError(t, env.doJSON(t, http.MethodGet, "/agents/missing/results", nil), http.StatusNotFound, "agent_not_found")
}

func TestAddRandomAgents(t *testing.T) {
	env := newTestEnv()

	rr := env.doJSON(t, http.MethodPost, "/agents/random?count=4", nil)
	expectStatus(t, rr, http.StatusCreated)
	var created agentListResponse
	decodeJSON(t, rr, &created)
	if created.Total != 4 || len(created.Agents) != 4 {
		t.Fatalf("expected 4 agents, got %+v", created)
	}
	for _, a := range created.Agents {
		if !strings.HasPrefix(a.Name, "Agent_") {
			t.Errorf("unexpected name %q", a.Name)
		}
	}

	rr = env.doJSON(t, http.MethodGet, "/agents", nil)
	expectStatus(t, rr, http.StatusOK)
	var listed agentListResponse
	decodeJSON(t, rr, &listed)
	if listed.Total != 4 {
		t.Fatalf("expected 4 listed agents, got %d", listed.Total)
	}
}

func TestAddRandomAgents_InvalidCount(t *testing.T) {
	env := newTestEnv()
	for _, q := range []string{"", "?count=abc", "?count=0", "?count=100000"} {
		t.Run(q, func(t *testing.T) {
			expectError(t, env.doJSON(t, http.MethodPost, "/agents/random"+q, nil), http.StatusBadRequest, "validation_error")
		})
	}
}

func TestRunSimulation(t *testing.T) {
	env := newTestEnv()
	for i := range 6 {
		env.createAgent(t, fmt.Sprintf("agent-%d", i))
	}

	rr := env.doJSON(t, http.MethodPost, "/simulations/run", nil)
	expectStatus(t, rr, http.StatusOK)

	var run runResponse
	decodeJSON(t, rr, &run)
	if len(run.Ticks) != 1 {
		t.Fatalf("expected 1 tick, got %d", len(run.Ticks))
	}
	tick := run.Ticks[0]
	if tick.State != "done" || tick.Orders != 6 || len(tick.Results) != 6 {
		t.Fatalf("unexpected tick: %+v", tick)
	}
	if math.Abs(tick.NetProfitLoss) > 1e-9 {
		t.Fatalf("net pnl = %v, want 0", tick.NetProfitLoss)
	}

	rr = env.doJSON(t, http.MethodGet, "/simulations/"+tick.TickID+"/results", nil)
	expectStatus(t, rr, http.StatusOK)
	var results resultListResponse
	decodeJSON(t, rr, &results)
	if results.Total != 6 {
		t.Fatalf("expected 6 stored results, got %d", results.Total)
	}

	agentID := tick.Results[0].AgentID
	rr = env.doJSON(t, http.MethodGet, "/agents/"+agentID+"/results", nil)
	expectStatus(t, rr, http.StatusOK)
	var agentResults resultListResponse
	decodeJSON(t, rr, &agentResults)
	if agentResults.Total != 1 || agentResults.Results[0].TickID != tick.TickID {
		t.Fatalf("unexpected agent results: %+v", agentResults)
	}
}

func TestRunSimulation_MultipleTicks(t *testing.T) {
	env := newTestEnv()
	env.createAgent(t, "a")
	env.createAgent(t, "b")

	rr := env.doJSON(t, http.MethodPost, "/simulations/run?ticks=3", nil)
	expectStatus(t, rr, http.StatusOK)
	var run runResponse
	decodeJSON(t, rr, &run)
	if len(run.Ticks) != 3 {
		t.Fatalf("expected 3 ticks, got %d", len(run.Ticks))
	}

	total := 0.0
	rr = env.doJSON(t, http.MethodGet, "/agents", nil)
	var listed agentListResponse
	decodeJSON(t, rr, &listed)
	for _, a := range listed.Agents {
		total += a.Balance
	}
	if math.Abs(total-20000) > 1e-6 {
		t.Fatalf("total balance = %v, want 20000", total)
	}
}

func TestRunSimulation_InvalidTicks(t *testing.T) {
	env := newTestEnv()
	expectError(t, env.doJSON(t, http.MethodPost, "/simulations/run?ticks=x", nil), http.StatusBadRequest, "validation_error")
	expectError(t, env.doJSON(t, http.MethodPost, "/simulations/run?ticks=0", nil), http.StatusBadRequest, "validation_error")
}

func TestTickResults_NotFound(t *testing.T) {
	env := newTestEnv()
	expectError(t, env.doJSON(t, http.MethodGet, "/simulations/nope/results", nil), http.StatusNotFound, "tick_not_found")
}

func TestAgentBehaviors(t *testing.T) {
	env := newTestEnv()

	rr := env.doJSON(t, http.MethodPost, "/agent_behaviors", map[string]string{"name": "trend", "behavior": "follow"})
	expectStatus(t, rr, http.StatusCreated)

	expectError(t,
		env.doJSON(t, http.MethodPost, "/agent_behaviors", map[string]string{"name": "trend", "behavior": "again"}),
		http.StatusConflict, "behavior_already_exists")

	rr = env.doJSON(t, http.MethodPut, "/agent_behaviors/trend", map[string]string{"name": "trend", "behavior": "fade"})
	expectStatus(t, rr, http.StatusOK)

	rr = env.doJSON(t, http.MethodGet, "/agent_behaviors/trend", nil)
	expectStatus(t, rr, http.StatusOK)
	var b behaviorBody
	decodeJSON(t, rr, &b)
	if b.Behavior != "fade" {
		t.Fatalf("behavior = %q, want fade", b.Behavior)
	}

	rr = env.doJSON(t, http.MethodGet, "/agent_behaviors", nil)
	expectStatus(t, rr, http.StatusOK)
	var list behaviorListResponse
	decodeJSON(t, rr, &list)
	if list.Total != 1 || list.Behaviors[0].Name != "trend" {
		t.Fatalf("unexpected list: %+v", list)
	}
}

func TestAgentBehaviors_Errors(t *testing.T) {
	env := newTestEnv()

	expectError(t,
		env.doJSON(t, http.MethodPut, "/agent_behaviors/ghost", map[string]string{"behavior": "x"}),
		http.StatusNotFound, "behavior_not_found")
	expectError(t,
		env.doJSON(t, http.MethodGet, "/agent_behaviors/ghost", nil),
		http.StatusNotFound, "behavior_not_found")
	expectError(t,
		env.doJSON(t, http.MethodPost, "/agent_behaviors", map[string]string{"name": "x"}),
		http.StatusBadRequest, "validation_error")

	env.doJSON(t, http.MethodPost, "/agent_behaviors", map[string]string{"name": "a", "behavior": "x"})
	expectError(t,
		env.doJSON(t, http.MethodPut, "/agent_behaviors/a", map[string]string{"name": "b", "behavior": "y"}),
		http.StatusBadRequest, "validation_error")
}

func TestOptionPrice(t *testing.T) {
	env := newTestEnv()

	rr := env.doJSON(t, http.MethodPost, "/options/price", map[string]float64{
		"S": 100, "K": 100, "T": 1, "r": 0.05, "sigma": 0.2,
	})
	expectStatus(t, rr, http.StatusOK)
	var resp optionPriceResponse
	decodeJSON(t, rr, &resp)
	if math.Abs(resp.CallPrice-10.4506) > 1e-3 || math.Abs(resp.PutPrice-5.5735) > 1e-3 {
		t.Fatalf("unexpected prices: %+v", resp)
	}

	expectError(t,
		env.doJSON(t, http.MethodPost, "/options/price", map[string]float64{"S": 100, "K": 100, "T": 1, "r": 0.05, "sigma": 1.5}),
		http.StatusBadRequest, "validation_error")
}

func TestCORSHeaders(t *testing.T) {
	env := newTestEnv()

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("Origin", "https://dashboard.example")
	rr := httptest.NewRecorder()
	env.router.ServeHTTP(rr, req)

	if got := rr.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Fatalf("Access-Control-Allow-Origin = %q, want *", got)
	}
}

func TestWriteServiceError(t *testing.T) {
	tests := []struct {
		err    error
		status int
		code   string
	}{
		{&domain.ValidationError{Message: "bad"}, http.StatusBadRequest, "validation_error"},
		{domain.ErrAgentNotFound, http.StatusNotFound, "agent_not_found"},
		{domain.ErrTickNotFound, http.StatusNotFound, "tick_not_found"},
		{domain.ErrBehaviorNotFound, http.StatusNotFound, "behavior_not_found"},
		{domain.ErrAgentAlreadyExists, http.StatusConflict, "agent_already_exists"},
		{domain.ErrBehaviorAlreadyExists, http.StatusConflict, "behavior_already_exists"},
		{domain.ErrTickInProgress, http.StatusServiceUnavailable, "tick_in_progress"},
		{fmt.Errorf("%w: stale balance", domain.ErrCommitFailure), http.StatusServiceUnavailable, "commit_failure"},
		{fmt.Errorf("generate orders: %w", domain.ErrInvalidAgent), http.StatusUnprocessableEntity, "invalid_agent"},
		{context.Canceled, http.StatusServiceUnavailable, "request_cancelled"},
		{fmt.Errorf("run: %w", context.DeadlineExceeded), http.StatusServiceUnavailable, "request_cancelled"},
		{errors.New("boom"), http.StatusInternalServerError, "internal_error"},
	}

	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			rr := httptest.NewRecorder()
			writeServiceError(rr, tt.err)
			expectError(t, rr, tt.status, tt.code)
		})
	}
}

func TestWebSocketStream(t *testing.T) {
	env := newTestEnv()
	env.createAgent(t, "a")
	env.createAgent(t, "b")

	srv := httptest.NewServer(env.router)
	defer srv.Close()
	defer env.hub.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	if resp.StatusCode != http.StatusSwitchingProtocols {
		t.Fatalf("expected 101, got %d", resp.StatusCode)
	}

	deadline := time.Now().Add(2 * time.Second)
	for env.hub.ClientCount() != 1 {
		if time.Now().After(deadline) {
			t.Fatal("client never registered with the hub")
		}
		time.Sleep(5 * time.Millisecond)
	}

	runResp, err := http.Post(srv.URL+"/simulations/run", "application/json", nil)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	var run runResponse
	json.NewDecoder(runResp.Body).Decode(&run)
	runResp.Body.Close()
	if runResp.StatusCode != http.StatusOK || len(run.Ticks) != 1 {
		t.Fatalf("run failed: status %d", runResp.StatusCode)
	}

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var ev publish.TickEvent
	if err := json.Unmarshal(msg, &ev); err != nil {
		t.Fatalf("invalid message %s: %v", msg, err)
	}
	if ev.Event != publish.EventTickCompleted || ev.TickID != run.Ticks[0].TickID {
		t.Fatalf("unexpected event: %+v", ev)
	}
	if len(ev.Results) != 2 {
		t.Fatalf("expected 2 results in event, got %d", len(ev.Results))
	}
}

func TestHub_PublishWithoutClients(t *testing.T) {
	hub := NewHub(slog.New(slog.NewTextHandler(io.Discard, nil)))
	report := &domain.TickReport{TickID: "t", State: domain.TickStateDone}
	if err := hub.PublishTick(context.Background(), report); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	hub.Close()
	if hub.ClientCount() != 0 {
		t.Fatal("expected no clients")
	}
}

// flakyLedger fails the commit numbered failCommit and the agent creation
// numbered failCreate (both 1-based, 0 disables).
type flakyLedger struct {
	store.Ledger
	failCommit int
	failCreate int

	mu      sync.Mutex
	commits int
	creates int
}

func (l *flakyLedger) CommitTick(ctx context.Context, c *domain.TickCommit) error {
	l.mu.Lock()
	l.commits++
	n := l.commits
	l.mu.Unlock()
	if n == l.failCommit {
		return fmt.Errorf("%w: disk full", domain.ErrCommitFailure)
	}
	return l.Ledger.CommitTick(ctx, c)
}

func (l *flakyLedger) CreateAgent(ctx context.Context, a *domain.Agent) error {
	l.mu.Lock()
	l.creates++
	n := l.creates
	l.mu.Unlock()
	if n == l.failCreate {
		return errors.New("connection reset")
	}
	return l.Ledger.CreateAgent(ctx, a)
}

func TestRunSimulation_PartialFailureReturnsCommittedTicks(t *testing.T) {
	mem := store.NewMemoryLedger()
	env := newTestEnvWithLedger(&flakyLedger{Ledger: mem, failCommit: 3})
	env.createAgent(t, "a")
	env.createAgent(t, "b")

	rr := env.doJSON(t, http.MethodPost, "/simulations/run?ticks=5", nil)
	expectStatus(t, rr, http.StatusServiceUnavailable)

	var resp partialRunResponse
	decodeJSON(t, rr, &resp)
	if resp.Error != "commit_failure" {
		t.Fatalf("error = %q, want commit_failure", resp.Error)
	}
	if len(resp.CommittedTicks) != 2 {
		t.Fatalf("expected 2 committed ticks, got %d", len(resp.CommittedTicks))
	}
	for _, tick := range resp.CommittedTicks {
		if tick.State != "done" {
			t.Errorf("tick %s state = %s, want done", tick.TickID, tick.State)
		}
		results, err := mem.ResultsByTick(context.Background(), tick.TickID)
		if err != nil || len(results) != 2 {
			t.Errorf("tick %s: expected 2 stored results, got %d (%v)", tick.TickID, len(results), err)
		}
	}
}

func TestRunSimulation_FirstTickFailureHasNoCommittedTicks(t *testing.T) {
	env := newTestEnvWithLedger(&flakyLedger{Ledger: store.NewMemoryLedger(), failCommit: 1})
	env.createAgent(t, "a")

	rr := env.doJSON(t, http.MethodPost, "/simulations/run?ticks=2", nil)
	expectStatus(t, rr, http.StatusServiceUnavailable)
	var body map[string]any
	decodeJSON(t, rr, &body)
	if body["error"] != "commit_failure" {
		t.Fatalf("error = %v, want commit_failure", body["error"])
	}
	if _, ok := body["committed_ticks"]; ok {
		t.Fatal("committed_ticks present although nothing was committed")
	}
}

func TestRunSimulation_CancelledRequest(t *testing.T) {
	env := newTestEnv()
	env.createAgent(t, "a")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	req := httptest.NewRequest(http.MethodPost, "/simulations/run?ticks=2", nil).WithContext(ctx)
	rr := httptest.NewRecorder()
	env.router.ServeHTTP(rr, req)

	expectError(t, rr, http.StatusServiceUnavailable, "request_cancelled")
}

func TestAddRandomAgents_PartialFailureReturnsCreated(t *testing.T) {
	mem := store.NewMemoryLedger()
	env := newTestEnvWithLedger(&flakyLedger{Ledger: mem, failCreate: 3})

	rr := env.doJSON(t, http.MethodPost, "/agents/random?count=5", nil)
	expectStatus(t, rr, http.StatusInternalServerError)

	var resp partialAgentsResponse
	decodeJSON(t, rr, &resp)
	if resp.Error != "internal_error" {
		t.Fatalf("error = %q, want internal_error", resp.Error)
	}
	if len(resp.CreatedAgents) != 2 {
		t.Fatalf("expected 2 created agents, got %d", len(resp.CreatedAgents))
	}
	for _, a := range resp.CreatedAgents {
		if _, err := mem.GetAgent(context.Background(), a.AgentID); err != nil {
			t.Errorf("agent %s not stored: %v", a.AgentID, err)
		}
	}
}
