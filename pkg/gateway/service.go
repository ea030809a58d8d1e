// Package gateway runs the chat channels against shared backends and serves
// health, readiness and metrics.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"babybot/pkg/bus"
	"babybot/pkg/channel"
	"babybot/pkg/config"
	"babybot/pkg/dispatch"
	"babybot/pkg/messaging"
	"babybot/pkg/metrics"
)

const (
	defaultHealthHost = "127.0.0.1"
	defaultHealthPort = 18790

	storeCheckInterval = 30 * time.Second
)

type Service struct {
	cfg      *config.Config
	log      *slog.Logger
	backends *Backends
	events   *bus.Bus
	metrics  *metrics.Metrics
	channels []channel.Adapter
	handlers map[string]channel.Handler

	mu            sync.RWMutex
	startedAt     time.Time
	storeLastOKAt time.Time
	storeLastErr  string
	channelStates map[string]channelState
}

type channelState struct {
	Running bool   `json:"running"`
	Error   string `json:"error,omitempty"`
}

type statusResponse struct {
	Status        string                  `json:"status"`
	UptimeSeconds int64                   `json:"uptime_seconds"`
	StoreLastOKAt string                  `json:"store_last_ok_at,omitempty"`
	StoreLastErr  string                  `json:"store_last_error,omitempty"`
	Channels      map[string]channelState `json:"channels"`
}

// NewService builds one dispatcher per adapter. Replies of every adapter are
// guarded by the shared reply-token ledger.
func NewService(cfg *config.Config, adapters []channel.Adapter, backends *Backends, log *slog.Logger) (*Service, error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}
	if len(adapters) == 0 {
		return nil, errors.New("at least one channel adapter is required")
	}
	if backends == nil {
		return nil, errors.New("backends are required")
	}
	if log == nil {
		log = slog.Default()
	}

	events := bus.New()
	handlers := make(map[string]channel.Handler, len(adapters))
	channelStates := make(map[string]channelState, len(adapters))
	for _, adapter := range adapters {
		d, err := dispatch.New(dispatch.Deps{
			Messenger: messaging.Guard(adapter.Messenger(), backends.Ledger, adapter.ReplyTokenTTL()),
			Store:     backends.Store,
			Storage:   backends.Storage,
			Feed:      backends.Feed,
			Events:    events,
			Log:       log,
			Platform:  adapter.Name(),
			Defaults:  cfg.Defaults,
			LinkTTL:   time.Duration(cfg.Storage.PresignExpirySeconds) * time.Second,
		})
		if err != nil {
			events.Close()
			return nil, fmt.Errorf("build %s dispatcher: %w", adapter.Name(), err)
		}
		handlers[adapter.Name()] = d.HandleBatch
		channelStates[adapter.Name()] = channelState{}
	}

	return &Service{
		cfg:           cfg,
		log:           log.With("component", "gateway.service"),
		backends:      backends,
		events:        events,
		metrics:       metrics.New(),
		channels:      adapters,
		handlers:      handlers,
		channelStates: channelStates,
	}, nil
}

func (s *Service) Run(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	defer s.events.Close()

	s.mu.Lock()
	s.startedAt = time.Now().UTC()
	s.mu.Unlock()

	if err := s.checkStoreHealth(ctx); err != nil {
		return err
	}

	metricEvents, _ := s.events.SubscribeEvents(ctx, 256)
	go s.metrics.Run(ctx, metricEvents)

	logEvents, _ := s.events.SubscribeEvents(ctx, 256)
	go s.logEvents(logEvents)

	serverErrors := make(chan error, 1)
	go s.runHealthServer(ctx, serverErrors)

	ticker := time.NewTicker(storeCheckInterval)
	defer ticker.Stop()
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				_ = s.checkStoreHealth(ctx)
			}
		}
	}()

	errCh := make(chan error, len(s.channels))
	for _, adapter := range s.channels {
		handler := s.handlers[adapter.Name()]
		s.setChannelState(adapter.Name(), channelState{Running: true})

		go func() {
			err := adapter.Run(ctx, handler)
			s.setChannelState(adapter.Name(), channelState{Running: false, Error: errorString(err)})
			if err != nil && !errors.Is(err, context.Canceled) {
				errCh <- fmt.Errorf("run %s channel: %w", adapter.Name(), err)
			}
		}()
	}

	select {
	case <-ctx.Done():
		return nil
	case err := <-serverErrors:
		return err
	case err := <-errCh:
		return err
	}
}

// logEvents logs lifecycle events. Failures are warnings and stored media is
// reported at info level.
func (s *Service) logEvents(events <-chan bus.Event) {
	for ev := range events {
		switch ev.Type {
		case bus.EventFailed:
			s.log.Warn("Event failed", "channel", ev.Channel, "chat_id", ev.ChatID, "request_id", ev.RequestID, "kind", ev.Error)
		case bus.MediaStored:
			s.log.Info("Media stored", "channel", ev.Channel, "chat_id", ev.ChatID, "key", ev.Payload["key"], "url", ev.Payload["url"], "bytes", ev.Bytes)
		default:
			s.log.Debug("Lifecycle event", "type", ev.Type, "channel", ev.Channel, "request_id", ev.RequestID)
		}
	}
}

func (s *Service) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", s.handleHealth)
	mux.HandleFunc("/readyz", s.handleReady)
	mux.Handle("/metrics", s.metrics.Handler())
	return mux
}

func (s *Service) runHealthServer(ctx context.Context, errCh chan<- error) {
	host := strings.TrimSpace(s.cfg.Gateway.Host)
	if host == "" {
		host = defaultHealthHost
	}

	port := s.cfg.Gateway.Port
	if port <= 0 {
		port = defaultHealthPort
	}

	addr := host + ":" + strconv.Itoa(port)
	server := &http.Server{
		Addr:              addr,
		Handler:           s.routes(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	s.log.Info("Gateway status server started", "address", addr)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		errCh <- fmt.Errorf("start status server: %w", err)
	}
}

func (s *Service) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.respondStatus(w, http.StatusOK, "ok")
}

func (s *Service) handleReady(w http.ResponseWriter, _ *http.Request) {
	statusCode := http.StatusOK
	status := "ready"
	if !s.isReady() {
		statusCode = http.StatusServiceUnavailable
		status = "not_ready"
	}

	s.respondStatus(w, statusCode, status)
}

func (s *Service) respondStatus(w http.ResponseWriter, statusCode int, status string) {
	payload := s.currentStatus(status)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.log.Error("Failed to write status response", "error", err)
	}
}

func (s *Service) currentStatus(status string) statusResponse {
	s.mu.RLock()
	defer s.mu.RUnlock()

	uptime := int64(0)
	if !s.startedAt.IsZero() {
		uptime = int64(time.Since(s.startedAt).Seconds())
	}

	channels := make(map[string]channelState, len(s.channelStates))
	for name, state := range s.channelStates {
		channels[name] = state
	}

	storeLastOK := ""
	if !s.storeLastOKAt.IsZero() {
		storeLastOK = s.storeLastOKAt.Format(time.RFC3339)
	}

	return statusResponse{
		Status:        status,
		UptimeSeconds: uptime,
		StoreLastOKAt: storeLastOK,
		StoreLastErr:  s.storeLastErr,
		Channels:      channels,
	}
}

// isReady requires a running channel and a persistence store whose last
// ping succeeded.
func (s *Service) isReady() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	anyRunning := false
	for _, state := range s.channelStates {
		if state.Running {
			anyRunning = true
			break
		}
	}

	return anyRunning && !s.storeLastOKAt.IsZero() && s.storeLastErr == ""
}

func (s *Service) checkStoreHealth(ctx context.Context) error {
	if err := s.backends.Store.Ping(ctx); err != nil {
		s.mu.Lock()
		s.storeLastErr = err.Error()
		s.mu.Unlock()
		return fmt.Errorf("persistence health check failed: %w", err)
	}

	s.mu.Lock()
	s.storeLastErr = ""
	s.storeLastOKAt = time.Now().UTC()
	s.mu.Unlock()

	return nil
}

func (s *Service) setChannelState(name string, state channelState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.channelStates[name] = state
}

func errorString(err error) string {
	if err == nil {
		return ""
	}

	return err.Error()
}
