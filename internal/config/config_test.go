package config_test

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/MrWong99/voxclone/internal/config"
	"github.com/MrWong99/voxclone/pkg/provider/stt"
	sttmock "github.com/MrWong99/voxclone/pkg/provider/stt/mock"
	"github.com/MrWong99/voxclone/pkg/provider/tts"
	ttsmock "github.com/MrWong99/voxclone/pkg/provider/tts/mock"
)

// ── helpers ──────────────────────────────────────────────────────────────────

const sampleYAML = `
server:
  listen_addr: ":8080"
  log_level: debug
  max_upload_bytes: 1048576
  upload_rate: 2.5
  upload_burst: 5
  cors_origins: ["http://localhost:3000"]

voices:
  dir: /srv/voices
  language: es
  preload: false
  preload_workers: 4

synthesis:
  sample_rate: 24000
  nfe_step: 32
  sway_sampling: 0
  speed: 1.1
  remove_silence: false
  crossfade_ms: 0
  max_chunk_chars: 200

providers:
  tts:
    name: f5
    base_url: http://localhost:7860
    options:
      api_mode: gradio
  stt:
    name: whisper
    base_url: http://localhost:8178
  stt_fallback:
    - name: openai
      api_key: sk-test
      model: whisper-1

storage:
  nats:
    url: nats://localhost:4222
    bucket: voices

telemetry:
  service_name: voxclone-test
  metrics_path: /internal/metrics
`

const sampleTOML = `
[server]
listen_addr = ":8080"
log_level = "debug"
max_upload_bytes = 1048576
upload_rate = 2.5
upload_burst = 5
cors_origins = ["http://localhost:3000"]

[voices]
dir = "/srv/voices"
language = "es"
preload = false
preload_workers = 4

[synthesis]
sample_rate = 24000
nfe_step = 32
sway_sampling = 0.0
speed = 1.1
remove_silence = false
crossfade_ms = 0
max_chunk_chars = 200

[providers.tts]
name = "f5"
base_url = "http://localhost:7860"
options = { api_mode = "gradio" }

[providers.stt]
name = "whisper"
base_url = "http://localhost:8178"

[[providers.stt_fallback]]
name = "openai"
api_key = "sk-test"
model = "whisper-1"

[storage.nats]
url = "nats://localhost:4222"
bucket = "voices"

[telemetry]
service_name = "voxclone-test"
metrics_path = "/internal/metrics"
`

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func checkSample(t *testing.T, cfg *config.Config) {
	t.Helper()

	if cfg.Server.ListenAddr != ":8080" {
		t.Errorf("listen_addr: got %q", cfg.Server.ListenAddr)
	}
	if cfg.Server.LogLevel != config.LogDebug {
		t.Errorf("log_level: got %q", cfg.Server.LogLevel)
	}
	if cfg.Server.MaxUploadBytes != 1<<20 || cfg.Server.UploadRate != 2.5 || cfg.Server.UploadBurst != 5 {
		t.Errorf("upload limits: got %+v", cfg.Server)
	}
	if len(cfg.Server.CORSOrigins) != 1 || cfg.Server.CORSOrigins[0] != "http://localhost:3000" {
		t.Errorf("cors_origins: got %v", cfg.Server.CORSOrigins)
	}
	if cfg.Voices.Dir != "/srv/voices" || cfg.Voices.Preload || cfg.Voices.PreloadWorkers != 4 {
		t.Errorf("voices: got %+v", cfg.Voices)
	}

	// Explicit zero and false values must survive defaulting.
	s := cfg.Synthesis
	if s.NFEStep != 32 || s.SwaySampling != 0 || s.Speed != 1.1 || s.RemoveSilence || s.CrossfadeMs != 0 || s.MaxChunkChars != 200 {
		t.Errorf("synthesis: got %+v", s)
	}

	if cfg.Providers.TTS.Name != "f5" || cfg.Providers.TTS.BaseURL != "http://localhost:7860" {
		t.Errorf("providers.tts: got %+v", cfg.Providers.TTS)
	}
	if cfg.Providers.TTS.Options["api_mode"] != "gradio" {
		t.Errorf("providers.tts.options: got %v", cfg.Providers.TTS.Options)
	}
	if cfg.Providers.STT.Name != "whisper" {
		t.Errorf("providers.stt.name: got %q", cfg.Providers.STT.Name)
	}
	if len(cfg.Providers.STTFallback) != 1 || cfg.Providers.STTFallback[0].Model != "whisper-1" {
		t.Errorf("providers.stt_fallback: got %+v", cfg.Providers.STTFallback)
	}
	if !cfg.Storage.NATS.Enabled() || cfg.Storage.NATS.Bucket != "voices" {
		t.Errorf("storage.nats: got %+v", cfg.Storage.NATS)
	}
	if cfg.Telemetry.ServiceName != "voxclone-test" || cfg.Telemetry.MetricsPath != "/internal/metrics" {
		t.Errorf("telemetry: got %+v", cfg.Telemetry)
	}
}

// ── loading ──────────────────────────────────────────────────────────────────

func TestLoad_YAML(t *testing.T) {
	t.Parallel()
	cfg, err := config.Load(writeConfig(t, "voxclone.yaml", sampleYAML))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	checkSample(t, cfg)
}

func TestLoad_TOML(t *testing.T) {
	t.Parallel()
	cfg, err := config.Load(writeConfig(t, "voxclone.toml", sampleTOML))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	checkSample(t, cfg)
}

func TestLoad_Defaults(t *testing.T) {
	t.Parallel()
	cfg, err := config.LoadFromReader(strings.NewReader("providers:\n  tts:\n    name: f5\n"))
	if err != nil {
		t.Fatalf("LoadFromReader: %v", err)
	}

	want := config.Default()
	want.Providers.TTS.Name = "f5"
	if !reflect.DeepEqual(cfg, want) {
		t.Errorf("defaults:\n got %+v\nwant %+v", cfg, want)
	}
	if cfg.Server.ListenAddr != ":5000" || cfg.Voices.Dir != "reference_voices" || !cfg.Voices.Preload {
		t.Errorf("unexpected defaults: %+v %+v", cfg.Server, cfg.Voices)
	}
	if cfg.Synthesis.SwaySampling != -1.0 || cfg.Synthesis.Speed != 0.98 || !cfg.Synthesis.RemoveSilence {
		t.Errorf("unexpected synthesis defaults: %+v", cfg.Synthesis)
	}
	if cfg.Storage.NATS.Enabled() {
		t.Error("mirror should be disabled without a url")
	}
}

func TestLoad_UnknownFields(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name, file, content string
	}{
		{"yaml", "c.yaml", "providers:\n  tts:\n    name: f5\nnpcs: []\n"},
		{"toml", "c.toml", "[providers.tts]\nname = \"f5\"\n[memory]\ndsn = \"x\"\n"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if _, err := config.Load(writeConfig(t, tc.file, tc.content)); err == nil {
				t.Fatal("expected error for unknown section")
			}
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	t.Parallel()
	_, err := config.Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("err = %v, want ErrNotExist", err)
	}
}

func TestFormatOf(t *testing.T) {
	t.Parallel()
	tests := map[string]config.Format{
		"voxclone.yaml": config.FormatYAML,
		"voxclone.yml":  config.FormatYAML,
		"voxclone.toml": config.FormatTOML,
		"VOXCLONE.TOML": config.FormatTOML,
		"voxclone":      config.FormatYAML,
	}
	for path, want := range tests {
		if got := config.FormatOf(path); got != want {
			t.Errorf("FormatOf(%q) = %q, want %q", path, got, want)
		}
	}
}

// ── environment ──────────────────────────────────────────────────────────────

func TestLoad_ExpandsEnv(t *testing.T) {
	t.Setenv("VOXCLONE_TEST_TTS_URL", "http://tts:7860")
	t.Setenv("VOXCLONE_TEST_KEY", "sk-from-env")

	cfg, err := config.LoadFromReader(strings.NewReader(`
providers:
  tts:
    name: f5
    base_url: ${VOXCLONE_TEST_TTS_URL}
  stt:
    name: openai
    api_key: ${VOXCLONE_TEST_KEY}
    model: ${VOXCLONE_TEST_UNSET:-whisper-1}
`))
	if err != nil {
		t.Fatalf("LoadFromReader: %v", err)
	}
	if cfg.Providers.TTS.BaseURL != "http://tts:7860" {
		t.Errorf("base_url: got %q", cfg.Providers.TTS.BaseURL)
	}
	if cfg.Providers.STT.APIKey != "sk-from-env" {
		t.Errorf("api_key: got %q", cfg.Providers.STT.APIKey)
	}
	if cfg.Providers.STT.Model != "whisper-1" {
		t.Errorf("model default: got %q", cfg.Providers.STT.Model)
	}
}

func TestExpandEnv_LeavesBareDollar(t *testing.T) {
	t.Setenv("VOXCLONE_TEST_A", "x")
	got := string(config.ExpandEnv([]byte("p$ss ${VOXCLONE_TEST_A} $VOXCLONE_TEST_A ${VOXCLONE_TEST_MISSING}")))
	if want := "p$ss x $VOXCLONE_TEST_A "; got != want {
		t.Errorf("ExpandEnv = %q, want %q", got, want)
	}
}

func TestLoadEnv(t *testing.T) {
	dir := t.TempDir()
	envFile := filepath.Join(dir, ".env")
	if err := os.WriteFile(envFile, []byte("VOXCLONE_TEST_DOTENV=from-file\nVOXCLONE_TEST_PRESET=from-file\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("VOXCLONE_TEST_PRESET", "from-env")
	t.Setenv("VOXCLONE_TEST_DOTENV", "")
	os.Unsetenv("VOXCLONE_TEST_DOTENV")

	if err := config.LoadEnv(envFile, filepath.Join(dir, "missing.env")); err != nil {
		t.Fatalf("LoadEnv: %v", err)
	}
	if got := os.Getenv("VOXCLONE_TEST_DOTENV"); got != "from-file" {
		t.Errorf("VOXCLONE_TEST_DOTENV = %q, want from-file", got)
	}
	if got := os.Getenv("VOXCLONE_TEST_PRESET"); got != "from-env" {
		t.Errorf("existing variable was overridden: %q", got)
	}
}

// ── registry ─────────────────────────────────────────────────────────────────

func TestRegistry(t *testing.T) {
	t.Parallel()

	reg := config.NewRegistry()
	reg.RegisterTTS("f5", func(e config.ProviderEntry) (tts.Provider, error) {
		return &ttsmock.Provider{}, nil
	})
	reg.RegisterSTT("whisper", func(e config.ProviderEntry) (stt.Provider, error) {
		return &sttmock.Provider{Text: e.Model}, nil
	})
	reg.RegisterSTT("deepgram", func(config.ProviderEntry) (stt.Provider, error) {
		return nil, errors.New("no key")
	})

	if _, err := reg.CreateTTS(config.ProviderEntry{Name: "f5"}); err != nil {
		t.Errorf("CreateTTS: %v", err)
	}
	p, err := reg.CreateSTT(config.ProviderEntry{Name: "whisper", Model: "base"})
	if err != nil {
		t.Fatalf("CreateSTT: %v", err)
	}
	if m := p.(*sttmock.Provider); m.Text != "base" {
		t.Errorf("factory did not receive the entry, got %q", m.Text)
	}
	if _, err := reg.CreateSTT(config.ProviderEntry{Name: "deepgram"}); err == nil || errors.Is(err, config.ErrProviderNotRegistered) || !strings.Contains(err.Error(), "no key") {
		t.Errorf("err = %v, want the factory's error", err)
	}
	if _, err := reg.CreateTTS(config.ProviderEntry{Name: "xtts"}); !errors.Is(err, config.ErrProviderNotRegistered) {
		t.Errorf("err = %v, want ErrProviderNotRegistered", err)
	}

	if got := strings.Join(reg.Names("stt"), ","); got != "deepgram,whisper" {
		t.Errorf("Names(stt) = %q", got)
	}
	if got := reg.Names("llm"); len(got) != 0 {
		t.Errorf("Names(llm) = %v, want empty", got)
	}
}
