// Command voxclone is the main entry point for the voxclone voice cloning
// server.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/MrWong99/voxclone/internal/app"
	"github.com/MrWong99/voxclone/internal/blobstore"
	"github.com/MrWong99/voxclone/internal/config"
	"github.com/MrWong99/voxclone/internal/observe"
	"github.com/MrWong99/voxclone/internal/resilience"
	"github.com/MrWong99/voxclone/pkg/provider/stt"
	"github.com/MrWong99/voxclone/pkg/provider/stt/deepgram"
	oastt "github.com/MrWong99/voxclone/pkg/provider/stt/openai"
	"github.com/MrWong99/voxclone/pkg/provider/stt/whisper"
	"github.com/MrWong99/voxclone/pkg/provider/tts"
	"github.com/MrWong99/voxclone/pkg/provider/tts/f5"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "config.yaml", "path to the YAML or TOML configuration file")
	envFile := flag.String("env", "", "dotenv file to load before the config (default .env)")
	flag.Parse()

	// ── Load configuration ────────────────────────────────────────────────────
	var envFiles []string
	if *envFile != "" {
		envFiles = append(envFiles, *envFile)
	}
	if err := config.LoadEnv(envFiles...); err != nil {
		fmt.Fprintf(os.Stderr, "voxclone: %v\n", err)
		return 1
	}
	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "voxclone: config file %q not found, copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "voxclone: %v\n", err)
		}
		return 1
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	levelVar := new(slog.LevelVar)
	levelVar.Set(cfg.Server.LogLevel.Level())
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: levelVar})))

	slog.Info("voxclone starting",
		"version", version,
		"config", *configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
	)

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Telemetry ─────────────────────────────────────────────────────────────
	tel, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceName:    cfg.Telemetry.ServiceName,
		ServiceVersion: version,
	})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}

	// ── Providers ─────────────────────────────────────────────────────────────
	reg := config.NewRegistry()
	registerBuiltinProviders(reg, cfg.Voices.Language)

	providers, err := buildProviders(cfg, reg)
	if err != nil {
		slog.Error("failed to build providers", "err", err)
		return 1
	}

	opts := []app.Option{
		app.WithLevelVar(levelVar),
		app.WithMetricsHandler(tel.MetricsHandler()),
	}

	// ── Reference mirror (optional) ───────────────────────────────────────────
	if cfg.Storage.NATS.Enabled() {
		mirror, nc, err := blobstore.Connect(ctx, cfg.Storage.NATS.URL, cfg.Storage.NATS.Bucket,
			nats.ReconnectHandler(func(nc *nats.Conn) {
				slog.Info("nats reconnected", "url", nc.ConnectedUrl())
			}),
			nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
				slog.Warn("nats disconnected", "err", err)
			}),
		)
		if err != nil {
			slog.Error("failed to connect reference mirror", "err", err)
			return 1
		}
		providers.Mirror = mirror
		providers.NATS = nc
		opts = append(opts, app.WithCloser(nc.Drain))
		slog.Info("reference mirror connected", "url", cfg.Storage.NATS.URL, "bucket", cfg.Storage.NATS.Bucket)
	}

	// Telemetry is flushed after everything else has stopped.
	opts = append(opts, app.WithCloser(func() error {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return tel.Shutdown(sctx)
	}))

	// ── Startup summary ───────────────────────────────────────────────────────
	printStartupSummary(cfg)

	application, err := app.New(ctx, cfg, providers, opts...)
	if err != nil {
		slog.Error("failed to initialise application", "err", err)
		return 1
	}

	// ── Config hot reload ─────────────────────────────────────────────────────
	watcher, err := config.NewWatcher(*configPath, func(old, new *config.Config) {
		application.ApplyConfig(config.Diff(old, new))
	})
	if err != nil {
		slog.Warn("config hot reload disabled", "err", err)
	} else {
		defer watcher.Stop()
	}

	slog.Info("server ready, press Ctrl+C to shut down")

	runErr := application.Run(ctx)
	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		slog.Error("run error", "err", runErr)
	}

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	shutdownCtx, cancel := context.WithTimeout(context.Background(), app.DefaultShutdownTimeout)
	defer cancel()

	slog.Info("stopping…")
	if err := application.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "err", err)
		return 1
	}
	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		return 1
	}
	slog.Info("goodbye")
	return 0
}

// ── Provider wiring ───────────────────────────────────────────────────────────

// registerBuiltinProviders wires all built-in provider factories into reg.
// lang is the default recognition and synthesis language when an entry does
// not set options.language.
func registerBuiltinProviders(reg *config.Registry, lang string) {
	language := func(entry config.ProviderEntry) string {
		if l := optString(entry.Options, "language"); l != "" {
			return l
		}
		return lang
	}

	// ── STT ───────────────────────────────────────────────────────────────────

	reg.RegisterSTT("whisper", func(entry config.ProviderEntry) (stt.Provider, error) {
		opts := []whisper.Option{whisper.WithLanguage(language(entry))}
		if entry.Model != "" {
			opts = append(opts, whisper.WithModel(entry.Model))
		}
		if d := optDuration(entry.Options, "timeout"); d > 0 {
			opts = append(opts, whisper.WithTimeout(d))
		}
		return whisper.New(entry.BaseURL, opts...)
	})

	reg.RegisterSTT("whisper-native", func(entry config.ProviderEntry) (stt.Provider, error) {
		modelPath := entry.Model
		if modelPath == "" {
			modelPath = optString(entry.Options, "model_path")
		}
		return whisper.NewNative(modelPath, whisper.WithNativeLanguage(language(entry)))
	})

	reg.RegisterSTT("openai", func(entry config.ProviderEntry) (stt.Provider, error) {
		opts := []oastt.Option{oastt.WithLanguage(language(entry))}
		if entry.BaseURL != "" {
			opts = append(opts, oastt.WithBaseURL(entry.BaseURL))
		}
		if d := optDuration(entry.Options, "timeout"); d > 0 {
			opts = append(opts, oastt.WithTimeout(d))
		}
		return oastt.New(entry.APIKey, entry.Model, opts...)
	})

	reg.RegisterSTT("deepgram", func(entry config.ProviderEntry) (stt.Provider, error) {
		opts := []deepgram.Option{deepgram.WithLanguage(language(entry))}
		if entry.Model != "" {
			opts = append(opts, deepgram.WithModel(entry.Model))
		}
		if entry.BaseURL != "" {
			opts = append(opts, deepgram.WithEndpoint(entry.BaseURL))
		}
		return deepgram.New(entry.APIKey, opts...)
	})

	// ── TTS ───────────────────────────────────────────────────────────────────

	// f5 and xtts speak the same sidecar protocol family and differ only in
	// the request shape.
	for name, mode := range map[string]f5.APIMode{"f5": f5.APIModeF5, "xtts": f5.APIModeXTTS} {
		reg.RegisterTTS(name, func(entry config.ProviderEntry) (tts.Provider, error) {
			opts := []f5.Option{
				f5.WithAPIMode(mode),
				f5.WithLanguage(language(entry)),
			}
			if entry.Model != "" {
				opts = append(opts, f5.WithModel(entry.Model))
			}
			if device := optString(entry.Options, "device"); device != "" {
				opts = append(opts, f5.WithDevice(device))
			}
			if d := optDuration(entry.Options, "timeout"); d > 0 {
				opts = append(opts, f5.WithTimeout(d))
			}
			return f5.New(entry.BaseURL, opts...)
		})
	}

	for _, kind := range []string{"stt", "tts"} {
		for _, name := range reg.Names(kind) {
			slog.Debug("registered provider", "kind", kind, "name", name)
		}
	}
}

// buildProviders instantiates the providers named in cfg and wraps them in
// circuit breakers.
func buildProviders(cfg *config.Config, reg *config.Registry) (*app.Providers, error) {
	ps := &app.Providers{TTSName: cfg.Providers.TTS.Name}

	p, err := reg.CreateTTS(cfg.Providers.TTS)
	if err != nil {
		return nil, fmt.Errorf("create tts provider %q: %w", cfg.Providers.TTS.Name, err)
	}
	synth := resilience.NewSynthesizerFallback(p, cfg.Providers.TTS.Name, resilience.FallbackConfig{
		CircuitBreaker: resilience.CircuitBreakerConfig{OnStateChange: logBreaker},
	})
	ps.TTS = synth
	ps.TTSBreakers = synth.Breakers()
	slog.Info("provider created", "kind", "tts", "name", cfg.Providers.TTS.Name)

	if !cfg.Providers.STT.Configured() {
		slog.Warn("no speech recognizer configured, voices are stored without transcripts")
		return ps, nil
	}

	// The recognizer is loaded on first use and released after preloading,
	// so every load builds a fresh chain.
	primary, fallbacks := cfg.Providers.STT, cfg.Providers.STTFallback
	ps.Transcriber = func(context.Context) (stt.Provider, error) {
		p, err := reg.CreateSTT(primary)
		if err != nil {
			return nil, fmt.Errorf("create stt provider %q: %w", primary.Name, err)
		}
		chain := resilience.NewTranscriberFallback(p, primary.Name, resilience.FallbackConfig{
			CircuitBreaker: resilience.CircuitBreakerConfig{OnStateChange: logBreaker},
		})
		for _, entry := range fallbacks {
			fb, err := reg.CreateSTT(entry)
			if err != nil {
				slog.Warn("skipping stt fallback", "name", entry.Name, "err", err)
				continue
			}
			chain.AddFallback(entry.Name, fb)
		}
		slog.Info("provider created", "kind", "stt", "name", primary.Name, "fallbacks", len(fallbacks))
		return chain, nil
	}
	return ps, nil
}

func logBreaker(name string, from, to resilience.State) {
	slog.Warn("circuit breaker state changed", "name", name, "from", from, "to", to)
}

// ── Startup summary ───────────────────────────────────────────────────────────

func printStartupSummary(cfg *config.Config) {
	fmt.Println("╔═══════════════════════════════════════╗")
	fmt.Println("║       voxclone startup summary        ║")
	fmt.Println("╠═══════════════════════════════════════╣")
	printProvider("TTS", cfg.Providers.TTS.Name, cfg.Providers.TTS.Model)
	printProvider("STT", cfg.Providers.STT.Name, cfg.Providers.STT.Model)
	fmt.Printf("║  STT fallbacks   : %-19d ║\n", len(cfg.Providers.STTFallback))
	printValue("Voices dir", cfg.Voices.Dir)
	printValue("Language", cfg.Voices.Language)
	fmt.Printf("║  Sample rate     : %-19d ║\n", cfg.Synthesis.SampleRate)
	if cfg.Storage.NATS.Enabled() {
		printValue("Mirror", cfg.Storage.NATS.Bucket)
	} else {
		printValue("Mirror", "(disabled)")
	}
	printValue("Listen addr", cfg.Server.ListenAddr)
	fmt.Println("╚═══════════════════════════════════════╝")
}

func printProvider(kind, name, model string) {
	value := name
	if value == "" {
		value = "(not configured)"
	} else if model != "" {
		value = name + " / " + model
	}
	printValue(kind, value)
}

func printValue(label, value string) {
	fmt.Printf("║  %-12s    : %-19s ║\n", label, truncate(value, 19))
}

// truncate shortens value to at most n runes, ending in "…" when cut.
func truncate(value string, n int) string {
	r := []rune(value)
	if len(r) <= n {
		return value
	}
	return string(r[:n-1]) + "…"
}

// ── Helpers ───────────────────────────────────────────────────────────────────

// optString extracts a string value from a provider Options map[string]any.
// Returns "" if the map is nil, the key is absent, or the value is not a string.
func optString(opts map[string]any, key string) string {
	if opts == nil {
		return ""
	}
	v, ok := opts[key]
	if !ok {
		return ""
	}
	s, ok := v.(string)
	if !ok {
		return ""
	}
	return s
}

// optDuration parses a duration option such as "90s". Invalid values yield 0.
func optDuration(opts map[string]any, key string) time.Duration {
	d, err := time.ParseDuration(optString(opts, key))
	if err != nil {
		return 0
	}
	return d
}
