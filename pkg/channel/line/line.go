// Package line serves the LINE webhook callback and replies through the
// LINE Messaging API.
package line

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"babybot/pkg/channel"
	"babybot/pkg/config"
	"babybot/pkg/messaging"
	linemsg "babybot/pkg/messaging/line"
)

const channelName = "line"

// Homepage is the body served on GET /.
const Homepage = "homepage."

// Adapter runs the callback HTTP server.
type Adapter struct {
	cfg       config.LineConfig
	messenger messaging.Messenger
	log       *slog.Logger
}

// NewAdapter validates LINE configuration and constructs an adapter.
func NewAdapter(cfg config.LineConfig, log *slog.Logger) (*Adapter, error) {
	if strings.TrimSpace(cfg.ChannelSecret) == "" {
		return nil, errors.New("line.channel_secret is required")
	}
	if strings.TrimSpace(cfg.ChannelAccessToken) == "" {
		return nil, errors.New("line.channel_access_token is required")
	}
	if log == nil {
		log = slog.Default()
	}

	client, err := linemsg.New(linemsg.Options{
		AccessToken:    cfg.ChannelAccessToken,
		RequestTimeout: time.Duration(cfg.RequestTimeoutSeconds) * time.Second,
	}, log)
	if err != nil {
		return nil, fmt.Errorf("initialize line client: %w", err)
	}

	return NewAdapterWithMessenger(cfg, client, log), nil
}

// NewAdapterWithMessenger builds an adapter around an existing messenger.
func NewAdapterWithMessenger(cfg config.LineConfig, messenger messaging.Messenger, log *slog.Logger) *Adapter {
	if log == nil {
		log = slog.Default()
	}
	return &Adapter{
		cfg:       cfg,
		messenger: messenger,
		log:       log.With("component", "channel.line"),
	}
}

func (a *Adapter) Name() string {
	return channelName
}

func (a *Adapter) Messenger() messaging.Messenger {
	return a.messenger
}

func (a *Adapter) ReplyTokenTTL() time.Duration {
	return time.Duration(a.cfg.ReplyTokenTTLSeconds) * time.Second
}

// Routes returns the callback mux: POST on the callback path and the
// homepage on GET /.
func (a *Adapter) Routes(handler channel.Handler) http.Handler {
	path := a.cfg.CallbackPath
	if path == "" {
		path = "/callback"
	}

	mux := http.NewServeMux()
	mux.Handle(path, NewWebhook(a.cfg.ChannelSecret, handler, a.log))
	mux.HandleFunc("GET /{$}", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte(Homepage))
	})
	return mux
}

// Run serves the callback until ctx ends.
func (a *Adapter) Run(ctx context.Context, handler channel.Handler) error {
	if handler == nil {
		return errors.New("handler is required")
	}

	addr := a.cfg.Host + ":" + strconv.Itoa(a.cfg.Port)
	server := &http.Server{
		Addr:              addr,
		Handler:           a.Routes(handler),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	a.log.Info("LINE channel started", "address", addr, "callback_path", a.cfg.CallbackPath)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("serve line callback: %w", err)
	}
	return nil
}
