package app

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"strconv"

	"github.com/MrWong99/facestream/internal/resilience"
	"github.com/MrWong99/facestream/pkg/face"
	"github.com/MrWong99/facestream/pkg/face/prepare"
	"github.com/MrWong99/facestream/pkg/face/take"
	"github.com/MrWong99/facestream/pkg/stream"
)

// maxBodyBytes caps uploaded takes and audio clips.
const maxBodyBytes = 64 << 20

// playResponse is the JSON body returned by the play endpoints.
type playResponse struct {
	Frames    int    `json:"frames"`
	Sent      int    `json:"sent"`
	Skipped   int    `json:"skipped"`
	Empty     int    `json:"empty"`
	ElapsedMS int64  `json:"elapsed_ms"`
	Cancelled bool   `json:"cancelled"`
	Error     string `json:"error,omitempty"`
}

// Handler returns the control API:
//
//	GET  /status      player state and last play result
//	POST /play        play a take (JSON, or CSV with ?fps=N)
//	POST /play/audio  infer a take from an audio clip and play it
//
// Plays are synchronous: the response is written when the take has finished.
// Disconnecting the client cancels the play.
func (p *Player) Handler() http.Handler {
	mux := http.NewServeMux()
	p.Register(mux)
	return mux
}

// Register adds the control endpoints to mux.
func (p *Player) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /status", p.handleStatus)
	mux.HandleFunc("POST /play", p.handlePlay)
	mux.HandleFunc("POST /play/audio", p.handlePlayAudio)
}

func (p *Player) handleStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, p.Status())
}

func (p *Player) handlePlay(w http.ResponseWriter, r *http.Request) {
	body := http.MaxBytesReader(w, r.Body, maxBodyBytes)

	fps := 0
	if v := r.URL.Query().Get("fps"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			http.Error(w, "fps must be a positive integer", http.StatusBadRequest)
			return
		}
		fps = n
	}
	if fps == 0 {
		fps = p.playback.Load().fps
	}

	var (
		tk  face.Take
		err error
	)
	mt, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	switch mt {
	case "text/csv":
		tk, err = take.ReadCSV(body, fps)
	case "", "application/json":
		tk, err = take.ReadJSON(body, fps)
	default:
		http.Error(w, "unsupported content type "+strconv.Quote(mt), http.StatusUnsupportedMediaType)
		return
	}
	if err != nil {
		http.Error(w, "invalid take: "+err.Error(), http.StatusBadRequest)
		return
	}

	stats, err := p.Play(r.Context(), tk)
	writePlayResult(w, stats, err)
}

func (p *Player) handlePlayAudio(w http.ResponseWriter, r *http.Request) {
	audio, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		http.Error(w, "read body: "+err.Error(), http.StatusBadRequest)
		return
	}
	if len(audio) == 0 {
		http.Error(w, "audio body is required", http.StatusBadRequest)
		return
	}

	stats, err := p.PlayAudio(r.Context(), audio)
	writePlayResult(w, stats, err)
}

func writePlayResult(w http.ResponseWriter, stats stream.Stats, err error) {
	resp := playResponse{
		Frames:    stats.Frames,
		Sent:      stats.Sent,
		Skipped:   stats.Skipped,
		Empty:     stats.Empty,
		ElapsedMS: stats.Elapsed.Milliseconds(),
		Cancelled: stats.Cancelled,
	}
	status := http.StatusOK
	if err != nil {
		resp.Error = err.Error()
		status = playErrorStatus(err)
	}
	writeJSON(w, status, resp)
}

// playErrorStatus maps a play failure to an HTTP status code.
func playErrorStatus(err error) int {
	switch {
	case errors.Is(err, face.ErrSequenceTooShort),
		errors.Is(err, prepare.ErrInvalidFPS),
		errors.Is(err, prepare.ErrNothingEncoded),
		errors.Is(err, stream.ErrInvalidFPS):
		return http.StatusBadRequest
	case errors.Is(err, ErrNoInference):
		return http.StatusNotImplemented
	case errors.Is(err, resilience.ErrAllFailed):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Debug("app: write response", "err", err)
	}
}
