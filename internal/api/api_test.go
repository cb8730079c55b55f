package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	gorillaws "github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"taskstream/internal/domain/event"
	"taskstream/internal/domain/job"
	"taskstream/internal/domain/record"
	"taskstream/internal/domain/summary"
	"taskstream/internal/domain/transaction"
	"taskstream/internal/events"
	"taskstream/internal/infrastructure/memory"
	"taskstream/internal/observer"
	"taskstream/internal/usecase"
	"taskstream/internal/worker"
)

const channel = "tx-events"

type testEnv struct {
	srv      *httptest.Server
	txs      *memory.Store[transaction.Transaction]
	sums     *memory.Store[summary.Summary]
	registry *observer.Registry
}

// newTestEnv wires the full pipeline on memory drivers: HTTP, queue,
// inline worker, broadcast channel, relay and observer registry.
func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())

	txs := memory.NewStore[transaction.Transaction]()
	sums := memory.NewStore[summary.Summary]()
	bus := memory.NewBus(64, nil)
	queue := memory.NewQueue(64)
	publisher := events.NewPublisher(bus, channel, time.Second, nil)
	registry := observer.NewRegistry(nil, observer.WithKeepAlive(50*time.Millisecond))

	relay := events.NewRelay(bus, channel, registry, 10*time.Millisecond, nil)
	relayDone := make(chan error, 1)
	go func() { relayDone <- relay.Run(ctx) }()
	require.Eventually(t, func() bool { return bus.Subscribers(channel) == 1 }, time.Second, 5*time.Millisecond)

	executor := worker.NewExecutor(nil).
		Register(job.ProcessTransaction, worker.NewTransactionHandler(txs, txs, publisher, 20*time.Millisecond)).
		Register(job.SummarizeText, worker.NewSummaryHandler(sums, sums, publisher, 20*time.Millisecond, 0, 0))
	runner := worker.NewRunner(queue, executor, worker.RunnerConfig{MaxRetries: 1, BaseDelay: time.Millisecond}, nil)
	runnerDone := make(chan error, 1)
	go func() { runnerDone <- runner.Run(ctx) }()

	h := NewHandlers(HandlersDeps{
		CreateTransaction: usecase.NewCreateTransaction(txs, publisher, queue, nil),
		GetTransaction:    usecase.NewGetRecord[transaction.Transaction](txs, nil, "transaction", time.Second),
		ListTransactions:  usecase.NewListRecords[transaction.Transaction](txs),
		CreateSummary:     usecase.NewCreateSummary(sums, publisher, queue, nil),
		GetSummary:        usecase.NewGetRecord[summary.Summary](sums, nil, "summary", time.Second),
		ListSummaries:     usecase.NewListRecords[summary.Summary](sums),
		Observers:         registry,
	})
	srv := httptest.NewServer(NewRouter(h))

	t.Cleanup(func() {
		srv.Close()
		cancel()
		assert.ErrorIs(t, <-relayDone, context.Canceled)
		assert.NoError(t, <-runnerDone)
		assert.Zero(t, bus.Subscribers(channel))
	})

	return &testEnv{srv: srv, txs: txs, sums: sums, registry: registry}
}

func (e *testEnv) post(t *testing.T, path string, body any, headers map[string]string) *http.Response {
	t.Helper()
	b, err := json.Marshal(body)
	require.NoError(t, err)
	req, err := http.NewRequest(http.MethodPost, e.srv.URL+path, bytes.NewReader(b))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func (e *testEnv) get(t *testing.T, path string) *http.Response {
	t.Helper()
	resp, err := http.Get(e.srv.URL + path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func (e *testEnv) dial(t *testing.T, path string) *gorillaws.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(e.srv.URL, "http") + path
	conn, resp, err := gorillaws.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	_ = resp.Body.Close()
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func readEvent(t *testing.T, conn *gorillaws.Conn) event.Event {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	ev, err := event.Decode(data)
	require.NoError(t, err)
	return ev
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t)

	resp := env.get(t, "/health")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, map[string]bool{"ok": true}, decode[map[string]bool](t, resp))
}

func TestAsyncTransaction_StreamsCreatedThenUpdated(t *testing.T) {
	env := newTestEnv(t)
	ws := env.dial(t, "/transactions/stream")
	require.Eventually(t, func() bool { return env.registry.Len() == 1 }, time.Second, 5*time.Millisecond)

	resp := env.post(t, "/transactions/async-process", map[string]any{
		"user_id": "u-1", "amount": 42.5, "kind": "deposit",
	}, map[string]string{"Idempotency-Key": "req-1"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	tx := decode[transaction.Transaction](t, resp)
	assert.Equal(t, record.StatusPending, tx.Status)
	assert.Equal(t, "req-1", tx.IdempotencyKey)

	created := readEvent(t, ws)
	assert.Equal(t, event.TxCreated, created.Kind)
	assert.Equal(t, tx.ID, created.ID)
	require.NotNil(t, created.Amount)
	assert.Equal(t, 42.5, *created.Amount)

	updated := readEvent(t, ws)
	assert.Equal(t, event.TxStatusUpdated, updated.Kind)
	assert.Equal(t, tx.ID, updated.ID)
	assert.Equal(t, record.StatusProcessed, updated.Status)

	got := decode[transaction.Transaction](t, env.get(t, "/transactions/"+tx.ID))
	assert.Equal(t, record.StatusProcessed, got.Status)
}

func TestAsyncTransaction_ForcedFailure(t *testing.T) {
	env := newTestEnv(t)
	ws := env.dial(t, "/ws/stream")
	require.Eventually(t, func() bool { return env.registry.Len() == 1 }, time.Second, 5*time.Millisecond)

	resp := env.post(t, "/transactions/async-process?fail=true", map[string]any{
		"user_id": "u-1", "amount": 1, "kind": "withdrawal",
	}, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	assert.Equal(t, event.TxCreated, readEvent(t, ws).Kind)
	updated := readEvent(t, ws)
	assert.Equal(t, record.StatusFailed, updated.Status)
}

func TestCreateTransaction_IdempotentReplay(t *testing.T) {
	env := newTestEnv(t)
	body := map[string]any{"user_id": "u-1", "amount": 10, "kind": "deposit"}

	first := decode[transaction.Transaction](t, env.post(t, "/transactions/create", body, nil))
	second := decode[transaction.Transaction](t, env.post(t, "/transactions/create", body, nil))

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, 1, env.txs.Len())

	list := decode[[]transaction.Transaction](t, env.get(t, "/transactions"))
	require.Len(t, list, 1)
	assert.Equal(t, first.ID, list[0].ID)
}

func TestCreateTransaction_Errors(t *testing.T) {
	env := newTestEnv(t)

	resp := env.post(t, "/transactions/create", map[string]any{"user_id": "u-1", "amount": 1, "kind": "deposit"},
		map[string]string{"Idempotency-Key": strings.Repeat("k", 256)})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = env.post(t, "/transactions/create", map[string]any{"amount": 1}, nil)
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)

	resp = env.post(t, "/transactions/async-process?fail=maybe", map[string]any{"user_id": "u", "amount": 1, "kind": "k"}, nil)
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)

	resp = env.get(t, "/transactions/does-not-exist")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, map[string]string{"detail": "transaction_not_found"}, decode[map[string]string](t, resp))

	assert.Zero(t, env.txs.Len())
}

func TestSummaryAsync_ProcessesAndStreams(t *testing.T) {
	env := newTestEnv(t)
	ws := env.dial(t, "/ws/stream")
	require.Eventually(t, func() bool { return env.registry.Len() == 1 }, time.Second, 5*time.Millisecond)

	resp := env.post(t, "/summaries/async", map[string]any{"text": "  the quick   brown fox "}, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	s := decode[summary.Summary](t, resp)
	assert.Equal(t, summary.DefaultSource, s.Source)

	created := readEvent(t, ws)
	assert.Equal(t, event.SummaryCreated, created.Kind)
	updated := readEvent(t, ws)
	assert.Equal(t, event.SummaryUpdated, updated.Kind)
	require.NotNil(t, updated.Preview)
	assert.Equal(t, "the quick brown fox", *updated.Preview)

	got := decode[summary.Summary](t, env.get(t, "/summaries/"+s.ID))
	require.NotNil(t, got.Result)
	assert.Equal(t, "the quick brown fox", *got.Result)

	list := decode[[]summary.Summary](t, env.get(t, "/summaries"))
	assert.Len(t, list, 1)
}

func TestSummary_NotFound(t *testing.T) {
	env := newTestEnv(t)

	resp := env.get(t, "/summaries/missing")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, map[string]string{"detail": "summary_not_found"}, decode[map[string]string](t, resp))
}

func TestStream_ObserverRemovedOnClose(t *testing.T) {
	env := newTestEnv(t)
	ws := env.dial(t, "/transactions/stream")
	require.Eventually(t, func() bool { return env.registry.Len() == 1 }, time.Second, 5*time.Millisecond)

	require.NoError(t, ws.WriteMessage(gorillaws.CloseMessage,
		gorillaws.FormatCloseMessage(gorillaws.CloseNormalClosure, "")))
	require.Eventually(t, func() bool { return env.registry.Len() == 0 }, 2*time.Second, 5*time.Millisecond)
}
