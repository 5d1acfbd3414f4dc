package config_test

import (
	"log/slog"
	"strings"
	"testing"

	"github.com/MrWong99/voxclone/internal/config"
)

func TestValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		yaml    string
		wantErr []string
	}{
		{
			name:    "tts required",
			yaml:    "server:\n  log_level: info\n",
			wantErr: []string{"providers.tts.name is required"},
		},
		{
			name:    "bad log level",
			yaml:    "server:\n  log_level: bananas\nproviders:\n  tts:\n    name: f5\n",
			wantErr: []string{"server.log_level"},
		},
		{
			name: "synthesis ranges",
			yaml: `
providers:
  tts:
    name: f5
synthesis:
  sample_rate: 100
  nfe_step: 500
  speed: 3
  crossfade_ms: -5
  max_chunk_chars: -1
`,
			wantErr: []string{"sample_rate", "nfe_step", "speed", "crossfade_ms", "max_chunk_chars"},
		},
		{
			name: "upload limits",
			yaml: `
server:
  max_upload_bytes: -1
  upload_rate: -2
  upload_burst: -3
providers:
  tts:
    name: f5
`,
			wantErr: []string{"max_upload_bytes", "upload_rate", "upload_burst"},
		},
		{
			name: "fallback without primary",
			yaml: `
providers:
  tts:
    name: f5
  stt_fallback:
    - name: openai
`,
			wantErr: []string{"stt_fallback requires providers.stt"},
		},
		{
			name: "unnamed fallback",
			yaml: `
providers:
  tts:
    name: f5
  stt:
    name: whisper
  stt_fallback:
    - api_key: x
`,
			wantErr: []string{"stt_fallback[0].name"},
		},
		{
			name:    "half configured tls",
			yaml:    "server:\n  tls:\n    cert_file: c.pem\nproviders:\n  tts:\n    name: f5\n",
			wantErr: []string{"server.tls"},
		},
		{
			name:    "relative metrics path",
			yaml:    "providers:\n  tts:\n    name: f5\ntelemetry:\n  metrics_path: metrics\n",
			wantErr: []string{"metrics_path"},
		},
		{
			name: "unknown provider names only warn",
			yaml: "providers:\n  tts:\n    name: my-tts\n  stt:\n    name: my-stt\n",
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			_, err := config.LoadFromReader(strings.NewReader(tc.yaml))
			if len(tc.wantErr) == 0 {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil {
				t.Fatal("expected error, got nil")
			}
			for _, want := range tc.wantErr {
				if !strings.Contains(err.Error(), want) {
					t.Errorf("error should mention %q, got: %v", want, err)
				}
			}
		})
	}
}

func TestApplyDefaults(t *testing.T) {
	t.Parallel()

	cfg := &config.Config{
		Server:  config.ServerConfig{UploadRate: 3},
		Storage: config.StorageConfig{NATS: config.NATSConfig{URL: "nats://localhost:4222"}},
	}
	config.ApplyDefaults(cfg)

	if cfg.Server.UploadBurst != 1 {
		t.Errorf("upload_burst = %d, want 1 when a rate is set", cfg.Server.UploadBurst)
	}
	if cfg.Storage.NATS.Bucket != config.DefaultBucket {
		t.Errorf("bucket = %q, want %q", cfg.Storage.NATS.Bucket, config.DefaultBucket)
	}
	if cfg.Synthesis.CrossfadeMs != 0 || cfg.Synthesis.SwaySampling != 0 || cfg.Synthesis.RemoveSilence {
		t.Errorf("zero-meaningful fields were overwritten: %+v", cfg.Synthesis)
	}
	if cfg.Synthesis.NFEStep != config.DefaultNFEStep || cfg.Voices.Dir != config.DefaultVoicesDir {
		t.Errorf("blank fields not defaulted: %+v %+v", cfg.Synthesis, cfg.Voices)
	}
}

func TestLogLevel_IsValid(t *testing.T) {
	t.Parallel()
	for _, l := range []config.LogLevel{config.LogDebug, config.LogInfo, config.LogWarn, config.LogError} {
		if !l.IsValid() {
			t.Errorf("%q should be valid", l)
		}
	}
	if config.LogLevel("trace").IsValid() {
		t.Error(`"trace" should be invalid`)
	}

	levels := map[config.LogLevel]slog.Level{
		config.LogDebug: slog.LevelDebug,
		config.LogInfo:  slog.LevelInfo,
		config.LogWarn:  slog.LevelWarn,
		config.LogError: slog.LevelError,
		"":              slog.LevelInfo,
	}
	for l, want := range levels {
		if got := l.Level(); got != want {
			t.Errorf("%q.Level() = %v, want %v", l, got, want)
		}
	}
}
