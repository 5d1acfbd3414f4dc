package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"strings"

	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// Format is a configuration file syntax.
type Format string

const (
	FormatYAML Format = "yaml"
	FormatTOML Format = "toml"
)

// FormatOf picks the syntax from the file extension. Anything that is not
// .toml is read as YAML.
func FormatOf(path string) Format {
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		return FormatTOML
	}
	return FormatYAML
}

// ValidProviderNames lists known provider names per provider kind.
// Used by [Validate] to warn about unrecognised provider names.
var ValidProviderNames = map[string][]string{
	"stt": {"whisper", "whisper-native", "openai", "deepgram"},
	"tts": {"f5", "xtts"},
}

// LoadEnv loads KEY=value pairs from the given .env files into the process
// environment without overriding variables that are already set. With no
// arguments it reads ".env". Missing files are skipped.
func LoadEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if _, err := os.Stat(f); errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err := godotenv.Load(f); err != nil {
			return fmt.Errorf("config: load env %q: %w", f, err)
		}
	}
	return nil
}

// Load reads the configuration file at path and returns a validated [Config].
// The format is chosen with [FormatOf].
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	cfg, err := parse(data, FormatOf(path))
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r and validates the result.
// Useful in tests where configs are constructed from string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	return Decode(r, FormatYAML)
}

// Decode reads a config in the given format from r and validates it.
func Decode(r io.Reader, format Format) (*Config, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("config: read: %w", err)
	}
	return parse(data, format)
}

// parse expands ${VAR} references, decodes data on top of [Default],
// fills blanks and validates.
func parse(data []byte, format Format) (*Config, error) {
	data = ExpandEnv(data)
	cfg := Default()

	switch format {
	case FormatTOML:
		dec := toml.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		if err := dec.Decode(cfg); err != nil {
			return nil, fmt.Errorf("config: decode toml: %w", err)
		}
	default:
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("config: decode yaml: %w", err)
		}
	}

	ApplyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

var envRef = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(?::-([^}]*))?\}`)

// ExpandEnv replaces ${VAR} and ${VAR:-default} with values from the
// environment. A bare $ is left untouched.
func ExpandEnv(data []byte) []byte {
	return envRef.ReplaceAllFunc(data, func(m []byte) []byte {
		sub := envRef.FindSubmatch(m)
		if v, ok := os.LookupEnv(string(sub[1])); ok {
			return []byte(v)
		}
		return sub[2]
	})
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if cfg.Server.MaxUploadBytes < 0 {
		errs = append(errs, fmt.Errorf("server.max_upload_bytes %d must not be negative", cfg.Server.MaxUploadBytes))
	}
	if cfg.Server.UploadRate < 0 {
		errs = append(errs, fmt.Errorf("server.upload_rate %g must not be negative", cfg.Server.UploadRate))
	}
	if cfg.Server.UploadBurst < 0 {
		errs = append(errs, fmt.Errorf("server.upload_burst %d must not be negative", cfg.Server.UploadBurst))
	}
	if tls := cfg.Server.TLS; tls != nil && (tls.CertFile == "" || tls.KeyFile == "") {
		errs = append(errs, errors.New("server.tls requires both cert_file and key_file"))
	}

	// Voices
	if cfg.Voices.PreloadWorkers < 0 {
		errs = append(errs, fmt.Errorf("voices.preload_workers %d must not be negative", cfg.Voices.PreloadWorkers))
	}

	// Synthesis
	s := cfg.Synthesis
	if s.SampleRate < 8000 || s.SampleRate > 192000 {
		errs = append(errs, fmt.Errorf("synthesis.sample_rate %d is out of range [8000, 192000]", s.SampleRate))
	}
	if s.NFEStep < 1 || s.NFEStep > 128 {
		errs = append(errs, fmt.Errorf("synthesis.nfe_step %d is out of range [1, 128]", s.NFEStep))
	}
	if s.Speed < 0.5 || s.Speed > 2.0 {
		errs = append(errs, fmt.Errorf("synthesis.speed %.2f is out of range [0.5, 2.0]", s.Speed))
	}
	if s.CrossfadeMs < 0 {
		errs = append(errs, fmt.Errorf("synthesis.crossfade_ms %d must not be negative", s.CrossfadeMs))
	}
	if s.MaxChunkChars < 1 {
		errs = append(errs, fmt.Errorf("synthesis.max_chunk_chars %d must be positive", s.MaxChunkChars))
	}

	// Providers
	if !cfg.Providers.TTS.Configured() {
		errs = append(errs, errors.New("providers.tts.name is required"))
	}
	validateProviderName("tts", cfg.Providers.TTS.Name)
	validateProviderName("stt", cfg.Providers.STT.Name)
	for i, fb := range cfg.Providers.STTFallback {
		if !fb.Configured() {
			errs = append(errs, fmt.Errorf("providers.stt_fallback[%d].name is required", i))
			continue
		}
		validateProviderName("stt", fb.Name)
	}
	if !cfg.Providers.STT.Configured() {
		if len(cfg.Providers.STTFallback) > 0 {
			errs = append(errs, errors.New("providers.stt_fallback requires providers.stt"))
		} else {
			slog.Warn("no STT provider configured; voices will be stored without transcripts")
		}
	}

	// Telemetry
	if !strings.HasPrefix(cfg.Telemetry.MetricsPath, "/") {
		errs = append(errs, fmt.Errorf("telemetry.metrics_path %q must start with /", cfg.Telemetry.MetricsPath))
	}

	if !cfg.Storage.NATS.Enabled() && cfg.Storage.NATS.Bucket != "" && cfg.Storage.NATS.Bucket != DefaultBucket {
		slog.Warn("storage.nats.bucket is set but storage.nats.url is empty; the voice mirror is disabled")
	}

	return errors.Join(errs...)
}

// validateProviderName logs a warning if name is non-empty and not found in
// the [ValidProviderNames] list for the given kind.
func validateProviderName(kind, name string) {
	if name == "" {
		return
	}
	known, ok := ValidProviderNames[kind]
	if !ok {
		return
	}
	if slices.Contains(known, name) {
		return
	}
	slog.Warn("unknown provider name, may be a typo or third-party provider",
		"kind", kind,
		"name", name,
		"known", known,
	)
}
