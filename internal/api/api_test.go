package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"regime-trading-bot/config"
	"regime-trading-bot/internal/auth"
	"regime-trading-bot/internal/circuit"
	"regime-trading-bot/internal/events"
	"regime-trading-bot/internal/kvstore"
	"regime-trading-bot/internal/ledger"
	"regime-trading-bot/internal/lock"
	"regime-trading-bot/internal/pipeline"
	"regime-trading-bot/internal/risk"
)

func init() { gin.SetMode(gin.TestMode) }

type fakeRunner struct {
	skipped bool
	runs    int
}

func (f *fakeRunner) RunNow(_ context.Context, trigger string) (pipeline.RunSummary, error) {
	f.runs++
	return pipeline.RunSummary{RunID: "r1", Trigger: trigger, Skipped: f.skipped}, nil
}

func (f *fakeRunner) Last() pipeline.RunSummary { return pipeline.RunSummary{RunID: "r0"} }

type checker struct{ err error }

func (c checker) HealthCheck(context.Context) error { return c.err }

type fixture struct {
	server   *Server
	store    *kvstore.MemoryStore
	ledger   *ledger.Ledger
	locks    *lock.Manager
	circuits *circuit.Registry
	runner   *fakeRunner
	bus      *events.EventBus
}

func newFixture(t *testing.T, authCfg *config.AuthConfig) *fixture {
	t.Helper()
	log := zerolog.Nop()
	f := &fixture{
		store:  kvstore.NewMemoryStore(),
		runner: &fakeRunner{},
		bus:    events.NewEventBus(),
	}
	f.ledger = ledger.New(ledger.NewMemoryStore(), log)
	f.locks = lock.NewManager(f.store, log)
	f.circuits = circuit.NewRegistry(f.store, circuit.Config{FailureThreshold: 1, Timeout: time.Minute}, log)

	deps := Deps{
		Runner:     f.runner,
		KillSwitch: risk.NewKillSwitch(f.store, "killswitch:global", log),
		Circuits:   f.circuits,
		Trades:     f.ledger,
		Locks:      f.locks,
		Events:     f.bus,
		Metrics:    http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { _, _ = w.Write([]byte("# metrics")) }),
		Health:     map[string]HealthChecker{"store": checker{}},
	}
	if authCfg != nil {
		deps.Auth = auth.NewService(*authCfg, log)
	}
	f.server = NewServer(config.ServerConfig{AllowedOrigins: "*"}, deps, log)
	t.Cleanup(func() { _ = f.server.Shutdown(context.Background()) })
	return f
}

func (f *fixture) do(method, path string, body interface{}, token string) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

func TestHealthReportsDependencies(t *testing.T) {
	f := newFixture(t, nil)
	w := f.do(http.MethodGet, "/health", nil, "")
	assert.Equal(t, http.StatusOK, w.Code)

	f.server.deps.Health["db"] = checker{err: errors.New("refused")}
	w = f.do(http.MethodGet, "/health", nil, "")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, "unhealthy", decode(t, w)["status"])
}

func TestMetricsMounted(t *testing.T) {
	f := newFixture(t, nil)
	w := f.do(http.MethodGet, "/metrics", nil, "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "# metrics")
}

func TestLoginGuardsOperatorRoutes(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("pw-123456"), bcrypt.MinCost)
	require.NoError(t, err)
	f := newFixture(t, &config.AuthConfig{
		Enabled:             true,
		JWTSecret:           "secret",
		AccessTokenDuration: time.Hour,
		OperatorUser:        "ops",
		OperatorPassHash:    string(hash),
	})

	assert.Equal(t, http.StatusUnauthorized, f.do(http.MethodGet, "/api/killswitch", nil, "").Code)

	w := f.do(http.MethodPost, "/api/auth/login", gin.H{"username": "ops", "password": "bad"}, "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = f.do(http.MethodPost, "/api/auth/login", gin.H{"username": "ops", "password": "pw-123456"}, "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	token := decode(t, w)["data"].(map[string]interface{})["access_token"].(string)

	w = f.do(http.MethodGet, "/api/killswitch", nil, token)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestKillSwitchRoundTrip(t *testing.T) {
	f := newFixture(t, nil)
	w := f.do(http.MethodPut, "/api/killswitch", gin.H{"engaged": true, "reason": "exchange incident"}, "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = f.do(http.MethodGet, "/api/killswitch", nil, "")
	data := decode(t, w)["data"].(map[string]interface{})
	assert.Equal(t, true, data["engaged"])
	assert.Equal(t, "exchange incident", data["reason"])

	assert.Equal(t, http.StatusBadRequest, f.do(http.MethodPut, "/api/killswitch", gin.H{"reason": "x"}, "").Code)

	w = f.do(http.MethodPut, "/api/killswitch", gin.H{"engaged": false}, "")
	require.Equal(t, http.StatusOK, w.Code)
	data = decode(t, w)["data"].(map[string]interface{})
	assert.Equal(t, false, data["engaged"])
}

func TestCloseTradeIsIdempotent(t *testing.T) {
	f := newFixture(t, nil)
	trade, err := f.ledger.RecordTrade(context.Background(), ledger.NewTrade{
		Symbol: "BTCUSDT", Side: ledger.SideLong, EntryPrice: 100, Quantity: 2,
	})
	require.NoError(t, err)

	w := f.do(http.MethodGet, "/api/trades/open", nil, "")
	assert.Len(t, decode(t, w)["data"], 1)

	path := "/api/trades/" + trade.ID + "/close"
	w = f.do(http.MethodPost, path, gin.H{"exit_price": 110}, "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	data := decode(t, w)["data"].(map[string]interface{})
	assert.Equal(t, true, data["closed"])
	assert.InDelta(t, 20, data["trade"].(map[string]interface{})["realized_pnl"], 1e-9)

	w = f.do(http.MethodPost, path, gin.H{"exit_price": 120}, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, false, decode(t, w)["data"].(map[string]interface{})["closed"])

	assert.Equal(t, http.StatusBadRequest, f.do(http.MethodPost, path, gin.H{"exit_price": 0}, "").Code)
	assert.Equal(t, http.StatusNotFound, f.do(http.MethodGet, "/api/trades/missing", nil, "").Code)
}

func TestLocksListAndForceRelease(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	_, ok, err := f.locks.AcquireSymbol(ctx, "ETHUSDT", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	w := f.do(http.MethodGet, "/api/locks", nil, "")
	assert.Len(t, decode(t, w)["data"], 1)

	w = f.do(http.MethodDelete, "/api/locks/ethusdt", nil, "")
	require.Equal(t, http.StatusOK, w.Code)

	held, err := f.locks.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, held)
}

func TestCircuitsListAndReset(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	require.NoError(t, f.circuits.RecordFailure(ctx, "binance.candles"))

	w := f.do(http.MethodGet, "/api/circuits", nil, "")
	list := decode(t, w)["data"].([]interface{})
	require.Len(t, list, 1)
	assert.Equal(t, "OPEN", list[0].(map[string]interface{})["state"])

	w = f.do(http.MethodPost, "/api/circuits/binance.candles/reset", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	snap, err := f.circuits.State(ctx, "binance.candles")
	require.NoError(t, err)
	assert.Equal(t, circuit.StateClosed, snap.State)
}

func TestRunNow(t *testing.T) {
	f := newFixture(t, nil)
	w := f.do(http.MethodPost, "/api/pipeline/run", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "manual", decode(t, w)["data"].(map[string]interface{})["trigger"])

	f.runner.skipped = true
	w = f.do(http.MethodPost, "/api/pipeline/run", nil, "")
	assert.Equal(t, http.StatusConflict, w.Code)

	w = f.do(http.MethodGet, "/api/pipeline/last", nil, "")
	assert.Equal(t, "r0", decode(t, w)["data"].(map[string]interface{})["run_id"])
}

func TestRateLimiter(t *testing.T) {
	rl := NewRateLimiter(2, time.Minute)
	assert.True(t, rl.Allow("a"))
	assert.True(t, rl.Allow("a"))
	assert.False(t, rl.Allow("a"))
	assert.True(t, rl.Allow("b"))
}

func TestWebSocketStreamsBusEvents(t *testing.T) {
	f := newFixture(t, nil)
	srv := httptest.NewServer(f.server.Handler())
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, msg, err := conn.ReadMessage()
	require.NoError(t, err)
	assert.Contains(t, string(msg), "CONNECTED")

	require.Eventually(t, func() bool { return f.server.hub.GetClientCount() == 1 }, time.Second, 5*time.Millisecond)
	f.bus.Publish(events.Event{Type: events.EventDecision, RunID: "run-7", Data: gin.H{"symbol": "BTCUSDT"}})

	_, msg, err = conn.ReadMessage()
	require.NoError(t, err)
	var ev events.Event
	require.NoError(t, json.Unmarshal(msg, &ev))
	assert.Equal(t, events.EventDecision, ev.Type)
	assert.Equal(t, "run-7", ev.RunID)
}
