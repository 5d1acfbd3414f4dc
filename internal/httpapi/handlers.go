package httpapi

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/MrWong99/voxclone/internal/audioproc"
	"github.com/MrWong99/voxclone/internal/observe"
	"github.com/MrWong99/voxclone/internal/synth"
	"github.com/MrWong99/voxclone/internal/voice"
	"github.com/MrWong99/voxclone/pkg/audio"
)

// ---- /health ----

type healthConfig struct {
	NFEStep      int     `json:"nfe_step"`
	SwaySampling float64 `json:"sway_sampling"`
	Speed        float64 `json:"speed"`
}

type healthResponse struct {
	Status       string       `json:"status"`
	Device       string       `json:"device"`
	Model        string       `json:"model"`
	VoicesCached int          `json:"voices_cached"`
	Config       healthConfig `json:"config"`
}

func (a *API) handleHealth(w http.ResponseWriter, _ *http.Request) {
	info := a.synth.Info()
	q := a.synth.Quality()
	writeJSON(w, http.StatusOK, healthResponse{
		Status:       "healthy",
		Device:       info.Device,
		Model:        info.Model,
		VoicesCached: a.voices.Len(),
		Config: healthConfig{
			NFEStep:      q.NFEStep,
			SwaySampling: q.SwaySampling,
			Speed:        q.Speed,
		},
	})
}

// ---- /voices ----

type voiceEntry struct {
	ID                   string `json:"id"`
	Name                 string `json:"name"`
	Language             string `json:"language"`
	Type                 string `json:"type"`
	HasTranscription     bool   `json:"has_transcription"`
	TranscriptionPreview string `json:"transcription_preview"`
}

type voicesResponse struct {
	Voices []voiceEntry `json:"voices"`
	Count  int          `json:"count"`
}

func (a *API) handleVoices(w http.ResponseWriter, _ *http.Request) {
	list := a.voices.ListVoices()
	resp := voicesResponse{Voices: make([]voiceEntry, 0, len(list)), Count: len(list)}
	for _, v := range list {
		resp.Voices = append(resp.Voices, voiceEntry{
			ID:                   v.ID,
			Name:                 v.DisplayName,
			Language:             v.Language,
			Type:                 "local",
			HasTranscription:     v.HasTranscription,
			TranscriptionPreview: v.TranscriptionPreview,
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

// ---- /upload_voice ----

type uploadResponse struct {
	Success       bool                 `json:"success"`
	VoiceID       string               `json:"voice_id"`
	Transcription string               `json:"transcription"`
	VoiceStats    audioproc.VoiceStats `json:"voice_stats"`
	Message       string               `json:"message"`
}

// multipartMemory is how much of a multipart form is held in memory before
// spilling to disk.
const multipartMemory = 8 << 20

func (a *API) handleUpload(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := observe.Logger(ctx)

	r.Body = http.MaxBytesReader(w, r.Body, a.maxUpload)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, fmt.Sprintf("Upload exceeds %d bytes", tooLarge.Limit))
			return
		}
		writeError(w, http.StatusBadRequest, "No audio file provided")
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, hdr, err := r.FormFile("audio")
	if err != nil {
		writeError(w, http.StatusBadRequest, "No audio file provided")
		return
	}
	defer file.Close()

	tmp, err := a.receive(file, hdr.Filename)
	if err != nil {
		log.Error("httpapi: saving upload failed", "err", err)
		writeError(w, http.StatusInternalServerError, "Could not store upload")
		return
	}
	defer os.Remove(tmp)

	log.Info("httpapi: upload received", "filename", hdr.Filename, "bytes", hdr.Size)
	rec, err := a.voices.ProcessUpload(ctx, tmp, strings.TrimSpace(r.FormValue("voice_id")))
	switch {
	case errors.Is(err, voice.ErrUnsupportedUpload):
		writeError(w, http.StatusBadRequest, err.Error())
		return
	case err != nil:
		log.Error("httpapi: upload failed", "err", err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, uploadResponse{
		Success:       true,
		VoiceID:       rec.ID,
		Transcription: rec.ReferenceTranscript,
		VoiceStats:    rec.Stats,
		Message:       fmt.Sprintf("Voice '%s' processed and ready to use", rec.ID),
	})
}

// receive copies the upload into a uniquely named hidden file in the voices
// directory, keeping the client's extension so the decoder can be chosen.
func (a *API) receive(src io.Reader, filename string) (string, error) {
	ext := strings.ToLower(filepath.Ext(filepath.Base(filename)))
	path := filepath.Join(a.voices.Dir(), ".upload-"+uuid.NewString()+ext)

	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(f, src); err != nil {
		f.Close()
		os.Remove(path)
		return "", err
	}
	if err := f.Close(); err != nil {
		os.Remove(path)
		return "", err
	}
	return path, nil
}

// ---- /tts, /tts_batch ----

type ttsRequest struct {
	Text    string `json:"text"`
	VoiceID string `json:"voice_id"`
	Voice   string `json:"voice"`
	Format  string `json:"format"`
}

type ttsResponse struct {
	Success             bool    `json:"success"`
	AudioBase64         string  `json:"audio_base64"`
	StitchedAudioBase64 string  `json:"stitched_audio_base64"`
	Duration            float64 `json:"duration"`
	SampleRate          int     `json:"sample_rate"`
}

// availableVoices and suggestedVoices cap the ids listed by an
// unknown-voice error.
const (
	availableVoices = 5
	suggestedVoices = 3
)

func (a *API) handleTTS(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req ttsRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxJSONBytes)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON body")
		return
	}
	voiceID := req.VoiceID
	if voiceID == "" {
		voiceID = req.Voice
	}
	if req.Text == "" {
		writeError(w, http.StatusBadRequest, "No text provided")
		return
	}
	if voiceID == "" {
		writeError(w, http.StatusBadRequest, "No voice_id provided")
		return
	}

	res, err := a.synth.GenerateForVoice(ctx, req.Text, voiceID)
	switch {
	case errors.Is(err, voice.ErrVoiceNotFound):
		ids := a.voices.IDs()
		writeJSON(w, http.StatusBadRequest, errorBody{
			Error:           fmt.Sprintf("Voice '%s' not found", voiceID),
			AvailableVoices: ids[:min(len(ids), availableVoices)],
			Suggestions:     voice.Suggest(voiceID, ids, suggestedVoices),
		})
		return
	case errors.Is(err, synth.ErrEmptyText):
		writeError(w, http.StatusBadRequest, "No text left after normalization")
		return
	case errors.Is(err, voice.ErrUnsupportedUpload):
		observe.Logger(ctx).Warn("httpapi: voice reference unusable", "voice_id", voiceID, "err", err)
		writeError(w, http.StatusBadRequest, err.Error())
		return
	case errors.Is(err, synth.ErrNoAudioGenerated):
		observe.Logger(ctx).Error("httpapi: synthesis produced no audio", "voice_id", voiceID, "err", err)
		writeError(w, http.StatusInternalServerError, "No audio generated")
		return
	case err != nil:
		observe.Logger(ctx).Error("httpapi: synthesis failed", "voice_id", voiceID, "err", err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	wav := audio.EncodeWAV(res.Audio)
	if req.Format == "file" {
		h := w.Header()
		h.Set("Content-Type", "audio/wav")
		h.Set("Content-Disposition", fmt.Sprintf(`attachment; filename="tts_%s.wav"`, voice.NormalizeID(voiceID)))
		h.Set("Content-Length", strconv.Itoa(len(wav)))
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(wav)
		return
	}

	b64 := base64.StdEncoding.EncodeToString(wav)
	writeJSON(w, http.StatusOK, ttsResponse{
		Success:             true,
		AudioBase64:         b64,
		StitchedAudioBase64: b64,
		Duration:            res.Audio.Seconds(),
		SampleRate:          res.Audio.SampleRate,
	})
}
