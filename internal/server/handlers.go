package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"nhooyr.io/websocket"

	"github.com/spacesedan/sentiboard/internal/db"
	"github.com/spacesedan/sentiboard/internal/models"
)

type saveResponse struct {
	Message string                 `json:"message"`
	Data    models.SentimentResult `json:"data"`
}

type messageResponse struct {
	Message string `json:"message"`
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.log.Error("[StoreServer] Failed to encode JSON response", slog.String("error", err.Error()))
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, models.ErrorResponse{Error: message})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]any{
		"status":      "ok",
		"subscribers": s.hub.Subscribers(),
	})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	snap, err := s.repo.Stats(r.Context())
	if err != nil {
		s.log.Error("[StoreServer] Failed to compute stats", slog.String("error", err.Error()))
		s.writeError(w, http.StatusInternalServerError, "Failed to fetch sentiment statistics")
		return
	}
	s.writeJSON(w, http.StatusOK, models.NewStatsResponse(snap))
}

func (s *Server) handleSave(w http.ResponseWriter, r *http.Request) {
	var in models.SentimentResult
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, MAX_BODY_BYTES)).Decode(&in); err != nil {
		s.writeError(w, http.StatusBadRequest, "Invalid JSON body")
		return
	}

	stored, err := s.repo.Save(r.Context(), in)
	if err != nil {
		if errors.Is(err, db.ErrInvalidResult) {
			s.metrics.saves.WithLabelValues("invalid", string(in.PredictedClass)).Inc()
			s.writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		s.metrics.saves.WithLabelValues("error", string(in.PredictedClass)).Inc()
		s.log.Error("[StoreServer] Failed to save result", slog.String("error", err.Error()))
		s.writeError(w, http.StatusInternalServerError, "Failed to save sentiment result")
		return
	}

	s.metrics.saves.WithLabelValues("ok", string(stored.PredictedClass)).Inc()
	s.log.Info("[StoreServer] Saved sentiment result",
		slog.String("id", stored.ID),
		slog.String("class", string(stored.PredictedClass)))
	if s.publisher != nil {
		s.publisher.Enqueue(stored)
	}
	s.broadcast(r.Context())
	s.writeJSON(w, http.StatusCreated, saveResponse{Message: "Sentiment saved", Data: stored})
}

func (s *Server) handleClear(w http.ResponseWriter, r *http.Request) {
	if err := s.repo.Clear(r.Context()); err != nil {
		s.log.Error("[StoreServer] Failed to clear data", slog.String("error", err.Error()))
		s.writeError(w, http.StatusInternalServerError, "Failed to clear database")
		return
	}
	s.metrics.clears.Inc()
	s.log.Warn("[StoreServer] All sentiment data cleared")
	s.broadcast(r.Context())
	s.writeJSON(w, http.StatusOK, messageResponse{Message: "All sentiment data cleared"})
}

// broadcast pushes fresh stats to local subscribers and other instances.
func (s *Server) broadcast(ctx context.Context) {
	snap, err := s.repo.Stats(ctx)
	if err != nil {
		s.log.Error("[StoreServer] Failed to compute stats for broadcast", slog.String("error", err.Error()))
		return
	}
	stats := models.NewStatsResponse(snap)
	event := s.hub.Publish(stats)
	s.log.Debug("[StoreServer] Broadcast data-updated", slog.Uint64("seq", event.Seq))
	if s.fanout != nil {
		s.fanout.Announce(ctx, stats)
	}
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{InsecureSkipVerify: true})
	if err != nil {
		s.log.Warn("[StoreServer] WebSocket upgrade failed", slog.String("error", err.Error()))
		return
	}
	defer conn.Close(websocket.StatusNormalClosure, "")

	events, unsubscribe := s.hub.Subscribe()
	defer unsubscribe()

	ctx := conn.CloseRead(r.Context())
	s.log.Info("[StoreServer] Realtime client connected", slog.String("remote", r.RemoteAddr))

	if latest, ok := s.hub.Latest(); ok {
		if err := writeEvent(ctx, conn, latest); err != nil {
			return
		}
	}
	ping := time.NewTicker(s.pingInterval)
	defer ping.Stop()

	for {
		select {
		case <-ctx.Done():
			s.log.Info("[StoreServer] Realtime client disconnected", slog.String("remote", r.RemoteAddr))
			return
		case <-ping.C:
			pingCtx, cancel := context.WithTimeout(ctx, s.pingInterval)
			err := conn.Ping(pingCtx)
			cancel()
			if err != nil {
				s.log.Warn("[StoreServer] Realtime client unresponsive, dropping",
					slog.String("remote", r.RemoteAddr),
					slog.String("error", err.Error()))
				return
			}
		case event := <-events:
			if err := writeEvent(ctx, conn, event); err != nil {
				s.log.Warn("[StoreServer] Realtime write failed", slog.String("error", err.Error()))
				return
			}
		}
	}
}

func writeEvent(ctx context.Context, conn *websocket.Conn, event models.RealtimeEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	writeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return conn.Write(writeCtx, websocket.MessageText, data)
}

// handlePoll answers with the latest event once its seq exceeds cursor,
// parking up to wait (capped by the server's poll limit) before a 204.
func (s *Server) handlePoll(w http.ResponseWriter, r *http.Request) {
	cursor, err := strconv.ParseUint(r.URL.Query().Get("cursor"), 10, 64)
	if err != nil && r.URL.Query().Get("cursor") != "" {
		s.writeError(w, http.StatusBadRequest, "cursor must be a non-negative integer")
		return
	}

	wait := min(s.pollWait, MAX_POLL_WAIT)
	if raw := r.URL.Query().Get("wait"); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil || d < 0 {
			s.writeError(w, http.StatusBadRequest, "wait must be a duration")
			return
		}
		wait = min(d, wait)
	}

	ctx, cancel := context.WithTimeout(r.Context(), wait)
	defer cancel()

	event, ok := s.hub.Wait(ctx, cursor)
	if !ok {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	s.writeJSON(w, http.StatusOK, event)
}
