// Package app wires the voxclone subsystems into a running server.
//
// The App owns the full lifecycle: New builds the voice store, the synthesis
// orchestrator, the HTTP API and the probes from the config; Run serves HTTP
// (and preloads voices when enabled) until the context is cancelled; and
// Shutdown releases everything in order.
//
// Providers are built by main through the config registry and handed in via
// [Providers]; tests pass mocks the same way.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/voxclone/internal/audioproc"
	"github.com/MrWong99/voxclone/internal/config"
	"github.com/MrWong99/voxclone/internal/health"
	"github.com/MrWong99/voxclone/internal/httpapi"
	"github.com/MrWong99/voxclone/internal/observe"
	"github.com/MrWong99/voxclone/internal/resilience"
	"github.com/MrWong99/voxclone/internal/synth"
	"github.com/MrWong99/voxclone/internal/voice"
	"github.com/MrWong99/voxclone/pkg/provider/tts"
)

// DefaultShutdownTimeout bounds how long Run waits for in-flight requests
// once its context is cancelled.
const DefaultShutdownTimeout = 15 * time.Second

// Providers holds the backends built by main. TTS is required; everything
// else is optional.
type Providers struct {
	// TTS synthesizes speech. TTSName labels it on metrics.
	TTS     tts.Provider
	TTSName string

	// TTSBreakers guard TTS; readiness fails while all are open.
	TTSBreakers []*resilience.CircuitBreaker

	// Transcriber builds the speech recognizer on first use. Nil stores
	// voices without transcripts.
	Transcriber voice.TranscriberFactory

	// Mirror replicates processed references. NATS reports the state of the
	// connection behind it.
	Mirror voice.Mirror
	NATS   health.NATSStatus
}

// App owns all subsystem lifetimes of the voxclone server.
type App struct {
	cfg       *config.Config
	providers *Providers
	metrics   *observe.Metrics
	levelVar  *slog.LevelVar

	store   *voice.Store
	synth   *synth.Orchestrator
	api     *httpapi.API
	probes  *health.Handler
	handler http.Handler
	server  *http.Server

	metricsHandler  http.Handler
	shutdownTimeout time.Duration

	// closers are called in order during Shutdown.
	closers  []func() error
	stopOnce sync.Once
}

// Option is a functional option for New.
type Option func(*App)

// WithMetrics sets the metrics instance. Defaults to [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) {
		if m != nil {
			a.metrics = m
		}
	}
}

// WithMetricsHandler serves h at the configured telemetry.metrics_path.
func WithMetricsHandler(h http.Handler) Option {
	return func(a *App) { a.metricsHandler = h }
}

// WithLevelVar lets [App.ApplyConfig] change the log level at runtime.
func WithLevelVar(lv *slog.LevelVar) Option {
	return func(a *App) { a.levelVar = lv }
}

// WithCloser registers fn to run during Shutdown, after the App's own
// subsystems have stopped.
func WithCloser(fn func() error) Option {
	return func(a *App) {
		if fn != nil {
			a.closers = append(a.closers, fn)
		}
	}
}

// WithShutdownTimeout overrides [DefaultShutdownTimeout].
func WithShutdownTimeout(d time.Duration) Option {
	return func(a *App) {
		if d > 0 {
			a.shutdownTimeout = d
		}
	}
}

// ─── New ─────────────────────────────────────────────────────────────────────

// New builds every subsystem from cfg and providers. Nothing is served until
// [App.Run].
func New(ctx context.Context, cfg *config.Config, providers *Providers, opts ...Option) (*App, error) {
	if cfg == nil {
		return nil, errors.New("app: config must not be nil")
	}
	if providers == nil || providers.TTS == nil {
		return nil, errors.New("app: a TTS provider is required")
	}
	a := &App{
		cfg:             cfg,
		providers:       providers,
		metrics:         observe.DefaultMetrics(),
		shutdownTimeout: DefaultShutdownTimeout,
	}
	for _, o := range opts {
		o(a)
	}
	// Closers from options run last.
	extra := a.closers
	a.closers = nil

	proc := audioproc.New(audioproc.WithSampleRate(cfg.Synthesis.SampleRate))

	// ── 1. Voice store ───────────────────────────────────────────────────
	if err := a.initVoices(proc); err != nil {
		return nil, fmt.Errorf("app: init voices: %w", err)
	}

	// ── 2. Orchestrator ──────────────────────────────────────────────────
	if err := a.initSynth(proc); err != nil {
		return nil, fmt.Errorf("app: init synth: %w", err)
	}

	// ── 3. HTTP ──────────────────────────────────────────────────────────
	if err := a.initHTTP(); err != nil {
		return nil, fmt.Errorf("app: init http: %w", err)
	}

	a.closers = append(a.closers, extra...)
	slog.InfoContext(ctx, "app initialised",
		"voices_dir", a.store.Dir(),
		"sample_rate", proc.SampleRate(),
		"transcriber", providers.Transcriber != nil,
		"mirror", providers.Mirror != nil,
	)
	return a, nil
}

// ─── Init helpers ────────────────────────────────────────────────────────────

func (a *App) initVoices(proc *audioproc.Processor) error {
	var tr *voice.Transcriber
	if a.providers.Transcriber != nil {
		tr = voice.NewTranscriber(a.providers.Transcriber)
		a.closers = append(a.closers, func() error {
			tr.Unload()
			return nil
		})
	}

	opts := []voice.Option{
		voice.WithLanguage(a.cfg.Voices.Language),
		voice.WithMetrics(a.metrics),
		voice.WithPreloadWorkers(a.cfg.Voices.PreloadWorkers),
	}
	if a.providers.Mirror != nil {
		opts = append(opts, voice.WithMirror(a.providers.Mirror))
	}
	store, err := voice.New(a.cfg.Voices.Dir, proc, tr, opts...)
	if err != nil {
		return err
	}
	a.store = store

	reg, err := a.metrics.ObserveVoicesCached(store.Len)
	if err != nil {
		return fmt.Errorf("register voices gauge: %w", err)
	}
	a.closers = append(a.closers, reg.Unregister)
	return nil
}

func (a *App) initSynth(proc *audioproc.Processor) error {
	s := a.cfg.Synthesis
	orch, err := synth.New(a.providers.TTS, proc,
		synth.WithQuality(tts.Quality{
			NFEStep:       s.NFEStep,
			SwaySampling:  s.SwaySampling,
			Speed:         s.Speed,
			RemoveSilence: s.RemoveSilence,
		}),
		synth.WithCrossfadeMs(s.CrossfadeMs),
		synth.WithMaxChunkChars(s.MaxChunkChars),
		synth.WithVoices(a.store),
		synth.WithMetrics(a.metrics),
		synth.WithProviderName(a.providers.TTSName),
	)
	if err != nil {
		return err
	}
	a.synth = orch

	if c, ok := a.providers.TTS.(io.Closer); ok {
		a.closers = append(a.closers, c.Close)
	}
	return nil
}

func (a *App) initHTTP() error {
	srv := a.cfg.Server
	api, err := httpapi.New(a.store, a.synth,
		httpapi.WithMaxUploadBytes(srv.MaxUploadBytes),
		httpapi.WithUploadLimit(srv.UploadRate, srv.UploadBurst),
		httpapi.WithCORSOrigins(srv.CORSOrigins...),
	)
	if err != nil {
		return err
	}
	a.api = api

	checks := []health.Checker{health.DirWritable("voices_dir", a.store.Dir())}
	if len(a.providers.TTSBreakers) > 0 {
		checks = append(checks, health.BreakersClosed("tts", a.providers.TTSBreakers...))
	}
	if a.providers.NATS != nil {
		checks = append(checks, health.NATSConnected("nats", a.providers.NATS))
	}
	a.probes = health.New(checks...)

	mux := http.NewServeMux()
	a.api.Register(mux)
	a.probes.Register(mux)
	if a.metricsHandler != nil {
		mux.Handle("GET "+a.cfg.Telemetry.MetricsPath, a.metricsHandler)
	}
	a.handler = a.api.CORS(observe.Middleware(a.metrics)(mux))

	a.server = &http.Server{
		Addr:              srv.ListenAddr,
		Handler:           a.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return nil
}

// ─── Accessors ───────────────────────────────────────────────────────────────

// Handler returns the root HTTP handler with all routes and middleware.
func (a *App) Handler() http.Handler { return a.handler }

// Store returns the voice store.
func (a *App) Store() *voice.Store { return a.store }

// Synth returns the synthesis orchestrator.
func (a *App) Synth() *synth.Orchestrator { return a.synth }

// ApplyConfig applies the hot-reloadable parts of a config change and logs
// the settings that need a restart.
func (a *App) ApplyConfig(d config.ConfigDiff) {
	if d.LogLevelChanged && a.levelVar != nil {
		a.levelVar.Set(d.NewLogLevel.Level())
		slog.Info("log level changed", "level", d.NewLogLevel)
	}
	if d.CrossfadeChanged {
		a.synth.SetCrossfadeMs(d.NewCrossfadeMs)
		slog.Info("crossfade changed", "ms", d.NewCrossfadeMs)
	}
	if d.MaxChunkCharsChanged {
		a.synth.SetMaxChunkChars(d.NewMaxChunkChars)
		slog.Info("max chunk chars changed", "chars", d.NewMaxChunkChars)
	}
	if len(d.RestartRequired) > 0 {
		slog.Warn("config changes take effect after a restart", "keys", d.RestartRequired)
	}
}

// ─── Run ─────────────────────────────────────────────────────────────────────

// Run listens on server.listen_addr and serves until ctx is cancelled. See
// [App.Serve].
func (a *App) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", a.server.Addr)
	if err != nil {
		return fmt.Errorf("app: listen %s: %w", a.server.Addr, err)
	}
	return a.Serve(ctx, ln)
}

// Serve serves HTTP on ln and, when voices.preload is set, preloads the
// voices directory alongside. When ctx is done the server drains in-flight
// requests for up to the shutdown timeout and Serve returns ctx's error.
func (a *App) Serve(ctx context.Context, ln net.Listener) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		var err error
		if tls := a.cfg.Server.TLS; tls != nil {
			err = a.server.ServeTLS(ln, tls.CertFile, tls.KeyFile)
		} else {
			err = a.server.Serve(ln)
		}
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("app: serve: %w", err)
	})

	if a.cfg.Voices.Preload {
		g.Go(func() error {
			report, err := a.store.PreloadAll(gctx)
			if err != nil && gctx.Err() == nil {
				slog.Warn("voice preload failed", "err", err)
			} else if err == nil && report.Failed > 0 {
				slog.Warn("some voices could not be preloaded", "failed", report.Failed)
			}
			return nil
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		sctx, cancel := context.WithTimeout(context.WithoutCancel(gctx), a.shutdownTimeout)
		defer cancel()
		return a.server.Shutdown(sctx)
	})

	slog.Info("app running", "addr", ln.Addr().String())
	err := g.Wait()
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return err
}

// ─── Shutdown ────────────────────────────────────────────────────────────────

// Shutdown stops the HTTP server if it is still running and tears down all
// subsystems in init order. If ctx expires before all closers finish, the
// remaining closers are skipped and the context error is returned.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		slog.Info("shutting down", "closers", len(a.closers))

		if err := a.server.Shutdown(ctx); err != nil {
			slog.Warn("http shutdown error", "err", err)
		}

		for i, closer := range a.closers {
			select {
			case <-ctx.Done():
				slog.Warn("shutdown deadline exceeded", "remaining", len(a.closers)-i)
				shutdownErr = ctx.Err()
				return
			default:
			}
			if err := closer(); err != nil {
				slog.Warn("closer error", "index", i, "err", err)
			}
		}

		slog.Info("shutdown complete")
	})
	return shutdownErr
}
