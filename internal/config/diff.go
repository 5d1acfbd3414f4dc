package config

import "slices"

// ConfigDiff describes what changed between two configs. The first group of
// fields can be applied to a running server; RestartRequired names changed
// settings that only take effect after a restart.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	CrossfadeChanged bool
	NewCrossfadeMs   int

	MaxChunkCharsChanged bool
	NewMaxChunkChars     int

	RestartRequired []string
}

// Empty reports whether nothing changed.
func (d ConfigDiff) Empty() bool {
	return !d.LogLevelChanged && !d.CrossfadeChanged && !d.MaxChunkCharsChanged && len(d.RestartRequired) == 0
}

// Diff compares old and new configs and returns what changed.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}
	if old.Synthesis.CrossfadeMs != new.Synthesis.CrossfadeMs {
		d.CrossfadeChanged = true
		d.NewCrossfadeMs = new.Synthesis.CrossfadeMs
	}
	if old.Synthesis.MaxChunkChars != new.Synthesis.MaxChunkChars {
		d.MaxChunkCharsChanged = true
		d.NewMaxChunkChars = new.Synthesis.MaxChunkChars
	}

	restart := func(key string, changed bool) {
		if changed {
			d.RestartRequired = append(d.RestartRequired, key)
		}
	}
	restart("server.listen_addr", old.Server.ListenAddr != new.Server.ListenAddr)
	restart("server.upload_rate", old.Server.UploadRate != new.Server.UploadRate || old.Server.UploadBurst != new.Server.UploadBurst)
	restart("server.cors_origins", !slices.Equal(old.Server.CORSOrigins, new.Server.CORSOrigins))
	restart("voices.dir", old.Voices.Dir != new.Voices.Dir)
	restart("synthesis.sample_rate", old.Synthesis.SampleRate != new.Synthesis.SampleRate)
	restart("synthesis.quality", old.Synthesis.NFEStep != new.Synthesis.NFEStep ||
		old.Synthesis.SwaySampling != new.Synthesis.SwaySampling ||
		old.Synthesis.Speed != new.Synthesis.Speed ||
		old.Synthesis.RemoveSilence != new.Synthesis.RemoveSilence)
	restart("providers.tts", !sameEntry(old.Providers.TTS, new.Providers.TTS))
	restart("providers.stt", !sameEntry(old.Providers.STT, new.Providers.STT) || !sameEntries(old.Providers.STTFallback, new.Providers.STTFallback))
	restart("storage.nats", old.Storage.NATS != new.Storage.NATS)
	return d
}

// sameEntry compares the scalar fields of two entries. Options are not
// compared.
func sameEntry(a, b ProviderEntry) bool {
	return a.Name == b.Name && a.APIKey == b.APIKey && a.BaseURL == b.BaseURL && a.Model == b.Model
}

func sameEntries(a, b []ProviderEntry) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !sameEntry(a[i], b[i]) {
			return false
		}
	}
	return true
}
