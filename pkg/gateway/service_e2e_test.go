package gateway

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"babybot/pkg/activity"
	"babybot/pkg/channel"
	"babybot/pkg/config"
	"babybot/pkg/dispatch"
	"babybot/pkg/event"
	"babybot/pkg/feed"
	"babybot/pkg/messaging"
	"babybot/pkg/messaging/messagingtest"
	"babybot/pkg/persistence/memory"
	"babybot/pkg/storage/local"
)

type scriptedAdapter struct {
	name      string
	ttl       time.Duration
	batches   [][]event.Event
	messenger *messagingtest.Recorder

	mu       sync.Mutex
	outcomes [][]dispatch.Outcome
	done     chan struct{}
}

func (a *scriptedAdapter) Name() string {
	return a.name
}

func (a *scriptedAdapter) Messenger() messaging.Messenger {
	return a.messenger
}

func (a *scriptedAdapter) ReplyTokenTTL() time.Duration {
	return a.ttl
}

func (a *scriptedAdapter) Run(ctx context.Context, handler channel.Handler) error {
	for _, batch := range a.batches {
		outcomes, err := handler(ctx, batch)
		if err != nil {
			return err
		}

		a.mu.Lock()
		a.outcomes = append(a.outcomes, outcomes)
		a.mu.Unlock()
	}

	close(a.done)

	<-ctx.Done()
	return nil
}

func (a *scriptedAdapter) results() [][]dispatch.Outcome {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([][]dispatch.Outcome(nil), a.outcomes...)
}

type toggledStore struct {
	*memory.Store

	mu      sync.Mutex
	pingErr error
}

func (s *toggledStore) Ping(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pingErr
}

func (s *toggledStore) setPingErr(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pingErr = err
}

func testBackends(t *testing.T, store *memory.Store) *Backends {
	t.Helper()
	return &Backends{
		Store:   store,
		Storage: local.New(t.TempDir()),
		Ledger:  messaging.NewMemoryLedger(),
		Feed:    feed.Nop{},
	}
}

func textMessage(token, userID, text string) event.Event {
	return event.Event{
		Type:       event.TypeMessage,
		ReplyToken: token,
		Source:     event.Source{Type: event.SourceUser, UserID: userID},
		Timestamp:  time.Now().UTC(),
		Message:    &event.Message{ID: "m-" + token, Type: event.MessageText, Text: text},
	}
}

func runService(t *testing.T, svc *Service) (cancel func()) {
	t.Helper()

	ctx, stop := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		errCh <- svc.Run(ctx)
	}()

	return func() {
		stop()
		select {
		case err := <-errCh:
			require.NoError(t, err)
		case <-time.After(3 * time.Second):
			t.Fatal("timed out waiting for service run to exit")
		}
	}
}

func TestGatewayServiceRunE2EDispatchesAdapterBatches(t *testing.T) {
	store := memory.New()
	userID := store.AddUser("telegram", "100")
	store.Follow(userID, 3, activity.RoleManager)

	cfg := &config.Config{Gateway: config.GatewayConfig{Host: "127.0.0.1", Port: freeTCPPort(t)}}

	adapter := &scriptedAdapter{
		name:      "telegram",
		messenger: messagingtest.New(),
		batches: [][]event.Event{
			{textMessage("tg:100:1", "100", "M 150"), textMessage("tg:100:2", "100", "hello")},
			{textMessage("tg:100:3", "100", "W 7.2")},
		},
		done: make(chan struct{}),
	}

	svc, err := NewService(cfg, []channel.Adapter{adapter}, testBackends(t, store), nil)
	require.NoError(t, err)
	stop := runService(t, svc)

	select {
	case <-adapter.done:
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for adapter scripted batches")
	}

	metricsURL := fmt.Sprintf("http://127.0.0.1:%d/metrics", cfg.Gateway.Port)
	require.Eventually(t, func() bool {
		body := fetch(t, metricsURL)
		return strings.Contains(body, `babybot_records_total{category="weight"} 1`) &&
			strings.Contains(body, `babybot_events_total{status="ok",type="message"} 3`)
	}, 3*time.Second, 25*time.Millisecond)

	stop()

	results := adapter.results()
	require.Len(t, results, 2)
	require.Len(t, results[0], 2)
	for _, outcome := range append(results[0], results[1]...) {
		require.Equal(t, dispatch.StatusOK, outcome.Status)
	}

	records := store.Records()
	require.Len(t, records, 2)
	require.Equal(t, [][]string{{"Saved milk: 150 ml."}}, adapter.messenger.RepliesFor("tg:100:1"))
	require.Equal(t, [][]string{{"Saved weight: 7.2 kg."}}, adapter.messenger.RepliesFor("tg:100:3"))
}

func TestGatewayServiceAppliesReplyTokenTTLPerAdapter(t *testing.T) {
	cfg := &config.Config{Gateway: config.GatewayConfig{Host: "127.0.0.1", Port: freeTCPPort(t)}}

	stale := func(token string) event.Event {
		ev := textMessage(token, "100", "help")
		ev.Timestamp = time.Now().Add(-2 * time.Minute)
		return ev
	}
	telegram := &scriptedAdapter{
		name:      "telegram",
		messenger: messagingtest.New(),
		batches:   [][]event.Event{{stale("tg:12345:7")}},
		done:      make(chan struct{}),
	}
	line := &scriptedAdapter{
		name:      "line",
		ttl:       time.Minute,
		messenger: messagingtest.New(),
		batches:   [][]event.Event{{stale("line-token")}},
		done:      make(chan struct{}),
	}

	svc, err := NewService(cfg, []channel.Adapter{telegram, line}, testBackends(t, memory.New()), nil)
	require.NoError(t, err)
	stop := runService(t, svc)

	for _, adapter := range []*scriptedAdapter{telegram, line} {
		select {
		case <-adapter.done:
		case <-time.After(3 * time.Second):
			t.Fatalf("timed out waiting for %s batches", adapter.name)
		}
	}
	stop()

	require.Equal(t, dispatch.StatusOK, telegram.results()[0][0].Status)
	require.Equal(t, 1, telegram.messenger.ReplyCount())

	outcome := line.results()[0][0]
	require.Equal(t, dispatch.StatusError, outcome.Status)
	require.Equal(t, "reply_token_expired", outcome.Error)
	require.Equal(t, 0, line.messenger.ReplyCount())
}

func TestGatewayServiceReadyzTransitionsOnStoreHealthRecovery(t *testing.T) {
	store := &toggledStore{Store: memory.New()}
	port := freeTCPPort(t)
	cfg := &config.Config{Gateway: config.GatewayConfig{Host: "127.0.0.1", Port: port}}

	adapter := &scriptedAdapter{name: "line", messenger: messagingtest.New(), done: make(chan struct{})}

	backends := testBackends(t, store.Store)
	backends.Store = store
	svc, err := NewService(cfg, []channel.Adapter{adapter}, backends, nil)
	require.NoError(t, err)
	stop := runService(t, svc)
	defer stop()

	readyURL := fmt.Sprintf("http://127.0.0.1:%d/readyz", port)
	require.Equal(t, http.StatusOK, waitHTTPStatus(t, readyURL, 2*time.Second))

	store.setPingErr(errors.New("temporary database outage"))
	require.Error(t, svc.checkStoreHealth(context.Background()))
	require.Equal(t, http.StatusServiceUnavailable, waitHTTPStatus(t, readyURL, 2*time.Second))

	store.setPingErr(nil)
	require.NoError(t, svc.checkStoreHealth(context.Background()))
	require.Equal(t, http.StatusOK, waitHTTPStatus(t, readyURL, 2*time.Second))

	healthURL := fmt.Sprintf("http://127.0.0.1:%d/healthz", port)
	require.Equal(t, http.StatusOK, waitHTTPStatus(t, healthURL, 2*time.Second))
}

func TestGatewayServiceRunFailsWhenStoreIsDown(t *testing.T) {
	store := &toggledStore{Store: memory.New(), pingErr: errors.New("no route to host")}
	cfg := &config.Config{Gateway: config.GatewayConfig{Host: "127.0.0.1", Port: freeTCPPort(t)}}
	adapter := &scriptedAdapter{name: "line", messenger: messagingtest.New(), done: make(chan struct{})}

	backends := testBackends(t, store.Store)
	backends.Store = store
	svc, err := NewService(cfg, []channel.Adapter{adapter}, backends, nil)
	require.NoError(t, err)

	require.ErrorContains(t, svc.Run(context.Background()), "persistence health check failed")
}

func fetch(t *testing.T, url string) string {
	t.Helper()

	response, err := http.Get(url)
	if err != nil {
		return ""
	}
	defer response.Body.Close()

	body, err := io.ReadAll(response.Body)
	require.NoError(t, err)
	return string(body)
}

func waitHTTPStatus(t *testing.T, url string, timeout time.Duration) int {
	t.Helper()

	deadline := time.Now().Add(timeout)
	for {
		response, err := http.Get(url)
		if err == nil {
			statusCode := response.StatusCode
			require.NoError(t, response.Body.Close())
			return statusCode
		}

		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s: %v", url, err)
		}

		time.Sleep(25 * time.Millisecond)
	}
}

func freeTCPPort(t *testing.T) int {
	t.Helper()

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer listener.Close()

	addr, ok := listener.Addr().(*net.TCPAddr)
	require.True(t, ok)
	return addr.Port
}
