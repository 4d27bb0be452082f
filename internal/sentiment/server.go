package sentiment

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/spacesedan/sentiboard/internal/models"
)

const (
	PREDICT_PATH       = "/predict"
	BATCH_PREDICT_PATH = "/batch_predict"
	HEALTH_PATH        = "/health"
	MAX_BATCH_SIZE     = 100
	MAX_BODY_BYTES     = 1 << 20
)

// NewHandler serves the oracle contract: single and batch prediction plus
// a health probe.
func NewHandler(logger *slog.Logger) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	h := &handler{log: logger}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Get(HEALTH_PATH, h.health)
	r.Post(PREDICT_PATH, h.predict)
	r.Post(BATCH_PREDICT_PATH, h.batchPredict)
	return r
}

type handler struct {
	log *slog.Logger
}

func (h *handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.log.Error("[Oracle] Failed to encode response", slog.String("error", err.Error()))
	}
}

func (h *handler) health(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "healthy", "model": "vader"})
}

func (h *handler) predict(w http.ResponseWriter, r *http.Request) {
	var req models.PredictRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, MAX_BODY_BYTES)).Decode(&req); err != nil {
		h.writeJSON(w, http.StatusBadRequest, models.ErrorResponse{Error: "invalid JSON body"})
		return
	}
	text := strings.TrimSpace(req.Text)
	if reason := checkText(text); reason != "" {
		h.writeJSON(w, http.StatusBadRequest, models.ErrorResponse{Error: reason})
		return
	}

	res := Analyze(text)
	h.log.Debug("[Oracle] Predicted",
		slog.String("class", string(res.PredictedClass)),
		slog.Float64("confidence", res.Confidence))
	h.writeJSON(w, http.StatusOK, models.PredictResponse{
		PredictedClass:   res.PredictedClass,
		Confidence:       res.Confidence,
		AllProbabilities: res.AllProbabilities,
		Text:             res.Text,
	})
}

func (h *handler) batchPredict(w http.ResponseWriter, r *http.Request) {
	var req models.BatchPredictRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, MAX_BODY_BYTES)).Decode(&req); err != nil {
		h.writeJSON(w, http.StatusBadRequest, models.ErrorResponse{Error: "invalid JSON body"})
		return
	}
	if len(req.Texts) == 0 {
		h.writeJSON(w, http.StatusBadRequest, models.ErrorResponse{Error: "texts is required"})
		return
	}
	if len(req.Texts) > MAX_BATCH_SIZE {
		h.writeJSON(w, http.StatusBadRequest, models.ErrorResponse{Error: "too many texts in one batch"})
		return
	}

	resp := models.BatchPredictResponse{
		Results:        make([]models.BatchPredictItem, 0, len(req.Texts)),
		TotalProcessed: len(req.Texts),
	}
	failed := 0
	for _, raw := range req.Texts {
		text := strings.TrimSpace(raw)
		if reason := checkText(text); reason != "" {
			failed++
			resp.Results = append(resp.Results, models.BatchPredictItem{
				Status: models.StatusFailure,
				Text:   raw,
				Error:  reason,
			})
			continue
		}
		res := Analyze(text)
		resp.Results = append(resp.Results, models.BatchPredictItem{
			Status:           models.StatusSuccess,
			PredictedClass:   res.PredictedClass,
			Confidence:       res.Confidence,
			AllProbabilities: res.AllProbabilities,
			Text:             res.Text,
		})
	}

	h.log.Info("[Oracle] Batch predicted",
		slog.Int("total", len(req.Texts)),
		slog.Int("failed", failed))
	h.writeJSON(w, http.StatusOK, resp)
}

func checkText(text string) string {
	if text == "" {
		return "text is required"
	}
	if utf8.RuneCountInString(text) > models.MaxTextLength {
		return "text exceeds 1000 characters"
	}
	return ""
}
