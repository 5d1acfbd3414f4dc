package tts

// Quality holds the sampling parameters of a flow-matching synthesis model.
type Quality struct {
	// NFEStep is the number of function evaluations (denoising steps).
	NFEStep int

	// SwaySampling is the sway sampling coefficient. Negative values spend
	// more steps early in the flow.
	SwaySampling float64

	// Speed scales the speaking rate (1.0 = reference tempo).
	Speed float64

	// RemoveSilence asks the backend to strip long silences from its output.
	RemoveSilence bool
}

// DefaultQuality returns the parameters voxclone synthesizes with.
func DefaultQuality() Quality {
	return Quality{
		NFEStep:       48,
		SwaySampling:  -1.0,
		Speed:         0.98,
		RemoveSilence: true,
	}
}

// Request is one synthesis call.
type Request struct {
	// Text is the text to speak. Callers pass already-normalised chunks.
	Text string

	// RefAudioPath is the local path of the reference recording.
	RefAudioPath string

	// RefText is the transcript of the reference recording. May be empty, in
	// which case backends that need it transcribe the reference themselves.
	RefText string

	// Quality carries the sampling parameters.
	Quality Quality
}

// Info describes the model behind a provider.
type Info struct {
	Provider string
	Model    string
	Device   string
}
