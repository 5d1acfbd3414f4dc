// Package config provides the configuration schema, loader, watcher and
// provider registry for the voxclone server.
//
// Files are YAML or TOML, chosen by extension. Every section carries both
// struct tags so either format decodes into the same [Config].
package config

import "log/slog"

// LogLevel controls log verbosity for the voxclone server.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// Level converts l to a slog level. Unknown values map to info.
func (l LogLevel) Level() slog.Level {
	switch l {
	case LogDebug:
		return slog.LevelDebug
	case LogWarn:
		return slog.LevelWarn
	case LogError:
		return slog.LevelError
	}
	return slog.LevelInfo
}

// Defaults applied by [Default] and therefore by every loader.
const (
	DefaultListenAddr     = ":5000"
	DefaultMaxUploadBytes = 50 << 20
	DefaultVoicesDir      = "reference_voices"
	DefaultLanguage       = "es"
	DefaultSampleRate     = 24000
	DefaultNFEStep        = 48
	DefaultSwaySampling   = -1.0
	DefaultSpeed          = 0.98
	DefaultCrossfadeMs    = 75
	DefaultMaxChunkChars  = 140
	DefaultServiceName    = "voxclone"
	DefaultMetricsPath    = "/metrics"
	DefaultBucket         = "voxclone-voices"
)

// Config is the root configuration structure for voxclone.
// It is typically loaded with [Load] or [LoadFromReader].
type Config struct {
	Server    ServerConfig    `yaml:"server" toml:"server"`
	Voices    VoicesConfig    `yaml:"voices" toml:"voices"`
	Synthesis SynthesisConfig `yaml:"synthesis" toml:"synthesis"`
	Providers ProvidersConfig `yaml:"providers" toml:"providers"`
	Storage   StorageConfig   `yaml:"storage" toml:"storage"`
	Telemetry TelemetryConfig `yaml:"telemetry" toml:"telemetry"`
}

// ServerConfig holds network, upload and logging settings.
type ServerConfig struct {
	// ListenAddr is the TCP address the HTTP API listens on.
	ListenAddr string `yaml:"listen_addr" toml:"listen_addr"`

	// LogLevel controls verbosity. Hot-reloadable.
	LogLevel LogLevel `yaml:"log_level" toml:"log_level"`

	// MaxUploadBytes caps the size of a multipart voice upload.
	MaxUploadBytes int64 `yaml:"max_upload_bytes" toml:"max_upload_bytes"`

	// UploadRate limits voice uploads to this many requests per second.
	// Zero disables the limit.
	UploadRate float64 `yaml:"upload_rate" toml:"upload_rate"`

	// UploadBurst is the token bucket size used with UploadRate.
	UploadBurst int `yaml:"upload_burst" toml:"upload_burst"`

	// CORSOrigins lists the browser origins allowed to call the API. "*"
	// allows any origin; empty disables CORS headers.
	CORSOrigins []string `yaml:"cors_origins" toml:"cors_origins"`

	// TLS configures TLS for the server. When nil, the server runs plain HTTP.
	TLS *TLSConfig `yaml:"tls" toml:"tls"`
}

// TLSConfig holds TLS certificate paths for enabling HTTPS.
type TLSConfig struct {
	CertFile string `yaml:"cert_file" toml:"cert_file"`
	KeyFile  string `yaml:"key_file" toml:"key_file"`
}

// VoicesConfig controls the reference voice store.
type VoicesConfig struct {
	// Dir is where uploads and processed references live.
	Dir string `yaml:"dir" toml:"dir"`

	// Language is the language tag used for display names and transcription.
	Language string `yaml:"language" toml:"language"`

	// Preload processes every recording in Dir at startup.
	Preload bool `yaml:"preload" toml:"preload"`

	// PreloadWorkers bounds how many recordings are processed at once
	// during preload.
	PreloadWorkers int `yaml:"preload_workers" toml:"preload_workers"`
}

// SynthesisConfig holds the sampling and stitching parameters.
type SynthesisConfig struct {
	SampleRate    int     `yaml:"sample_rate" toml:"sample_rate"`
	NFEStep       int     `yaml:"nfe_step" toml:"nfe_step"`
	SwaySampling  float64 `yaml:"sway_sampling" toml:"sway_sampling"`
	Speed         float64 `yaml:"speed" toml:"speed"`
	RemoveSilence bool    `yaml:"remove_silence" toml:"remove_silence"`

	// CrossfadeMs and MaxChunkChars are hot-reloadable.
	CrossfadeMs   int `yaml:"crossfade_ms" toml:"crossfade_ms"`
	MaxChunkChars int `yaml:"max_chunk_chars" toml:"max_chunk_chars"`
}

// ProvidersConfig selects the synthesis and transcription backends. Each
// entry names a provider registered in the [Registry].
type ProvidersConfig struct {
	TTS ProviderEntry `yaml:"tts" toml:"tts"`
	STT ProviderEntry `yaml:"stt" toml:"stt"`

	// STTFallback lists transcribers tried in order when STT fails.
	STTFallback []ProviderEntry `yaml:"stt_fallback" toml:"stt_fallback"`
}

// ProviderEntry is the configuration for a single provider.
type ProviderEntry struct {
	// Name is the registered provider name (e.g., "f5", "whisper").
	Name string `yaml:"name" toml:"name"`

	// APIKey is the authentication key for the provider's API.
	APIKey string `yaml:"api_key" toml:"api_key"`

	// BaseURL overrides the provider's default endpoint.
	BaseURL string `yaml:"base_url" toml:"base_url"`

	// Model selects a specific model or model file.
	Model string `yaml:"model" toml:"model"`

	// Options holds provider-specific settings not covered above.
	Options map[string]any `yaml:"options" toml:"options"`
}

// Configured reports whether the entry selects a provider.
func (e ProviderEntry) Configured() bool { return e.Name != "" }

// StorageConfig configures external storage.
type StorageConfig struct {
	NATS NATSConfig `yaml:"nats" toml:"nats"`
}

// NATSConfig configures the JetStream object store mirror of processed
// references. An empty URL disables the mirror.
type NATSConfig struct {
	URL    string `yaml:"url" toml:"url"`
	Bucket string `yaml:"bucket" toml:"bucket"`
}

// Enabled reports whether the mirror is configured.
func (n NATSConfig) Enabled() bool { return n.URL != "" }

// TelemetryConfig configures metrics and tracing.
type TelemetryConfig struct {
	ServiceName string `yaml:"service_name" toml:"service_name"`
	MetricsPath string `yaml:"metrics_path" toml:"metrics_path"`
}

// Default returns a Config with every default filled in. Loaders decode
// on top of it so omitted keys keep their defaults.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			ListenAddr:     DefaultListenAddr,
			LogLevel:       LogInfo,
			MaxUploadBytes: DefaultMaxUploadBytes,
		},
		Voices: VoicesConfig{
			Dir:            DefaultVoicesDir,
			Language:       DefaultLanguage,
			Preload:        true,
			PreloadWorkers: 1,
		},
		Synthesis: SynthesisConfig{
			SampleRate:    DefaultSampleRate,
			NFEStep:       DefaultNFEStep,
			SwaySampling:  DefaultSwaySampling,
			Speed:         DefaultSpeed,
			RemoveSilence: true,
			CrossfadeMs:   DefaultCrossfadeMs,
			MaxChunkChars: DefaultMaxChunkChars,
		},
		Telemetry: TelemetryConfig{
			ServiceName: DefaultServiceName,
			MetricsPath: DefaultMetricsPath,
		},
	}
}

// ApplyDefaults fills fields an explicit empty value left blank. Values
// whose zero is meaningful (sway_sampling, crossfade_ms, booleans) are
// left alone.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.ListenAddr == "" {
		cfg.Server.ListenAddr = DefaultListenAddr
	}
	if cfg.Server.LogLevel == "" {
		cfg.Server.LogLevel = LogInfo
	}
	if cfg.Server.MaxUploadBytes == 0 {
		cfg.Server.MaxUploadBytes = DefaultMaxUploadBytes
	}
	if cfg.Server.UploadRate > 0 && cfg.Server.UploadBurst == 0 {
		cfg.Server.UploadBurst = 1
	}
	if cfg.Voices.Dir == "" {
		cfg.Voices.Dir = DefaultVoicesDir
	}
	if cfg.Voices.Language == "" {
		cfg.Voices.Language = DefaultLanguage
	}
	if cfg.Voices.PreloadWorkers == 0 {
		cfg.Voices.PreloadWorkers = 1
	}
	if cfg.Synthesis.SampleRate == 0 {
		cfg.Synthesis.SampleRate = DefaultSampleRate
	}
	if cfg.Synthesis.NFEStep == 0 {
		cfg.Synthesis.NFEStep = DefaultNFEStep
	}
	if cfg.Synthesis.Speed == 0 {
		cfg.Synthesis.Speed = DefaultSpeed
	}
	if cfg.Synthesis.MaxChunkChars == 0 {
		cfg.Synthesis.MaxChunkChars = DefaultMaxChunkChars
	}
	if cfg.Storage.NATS.Enabled() && cfg.Storage.NATS.Bucket == "" {
		cfg.Storage.NATS.Bucket = DefaultBucket
	}
	if cfg.Telemetry.ServiceName == "" {
		cfg.Telemetry.ServiceName = DefaultServiceName
	}
	if cfg.Telemetry.MetricsPath == "" {
		cfg.Telemetry.MetricsPath = DefaultMetricsPath
	}
}
