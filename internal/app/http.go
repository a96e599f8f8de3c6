package app

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"setlist/bot/internal/broadcast"
)

type HTTPServer struct {
	service    *Service
	hub        *broadcast.Hub
	corsOrigin string
}

func NewHTTPServer(service *Service, hub *broadcast.Hub, corsOrigin string) *HTTPServer {
	return &HTTPServer{service: service, hub: hub, corsOrigin: corsOrigin}
}

func (s *HTTPServer) Handler() http.Handler {
	return s.withMiddleware(http.HandlerFunc(s.handle))
}

func (s *HTTPServer) handle(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodOptions {
		writeJSON(w, http.StatusNoContent, map[string]any{})
		return
	}

	if (r.Method == http.MethodGet || r.Method == http.MethodHead) && r.URL.Path == "/api/health" {
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
		return
	}

	if (r.Method == http.MethodGet || r.Method == http.MethodHead) && r.URL.Path == "/api/ready" {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		status := "ready"
		statusCode := http.StatusOK
		checks := map[string]any{
			"store": map[string]any{"status": "ok"},
		}
		if err := s.service.Ping(ctx); err != nil {
			status = "not_ready"
			statusCode = http.StatusServiceUnavailable
			checks["store"] = map[string]any{"status": "error", "error": err.Error()}
		}
		writeJSON(w, statusCode, map[string]any{
			"ok":     status == "ready",
			"status": status,
			"checks": checks,
		})
		return
	}

	if r.Method == http.MethodPost && r.URL.Path == "/api/command" {
		s.handleCommand(w, r)
		return
	}

	if r.Method == http.MethodGet && r.URL.Path == "/api/overlay/snapshot" {
		s.handleOverlaySnapshot(w, r)
		return
	}

	if r.Method == http.MethodGet && r.URL.Path == "/api/overlay/stream" {
		s.handleOverlayStream(w, r)
		return
	}

	writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
}

// handleCommand is the inbound seam for the command-dispatch collaborator:
// one tokenized chat event in, one rendered reply out. Rejections still
// carry the reply text so the chat layer can relay it verbatim.
func (s *HTTPServer) handleCommand(w http.ResponseWriter, r *http.Request) {
	var cmd Command
	if err := decodeBody(r, &cmd); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	if cmd.Sender == "" || cmd.Command == "" {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", "sender and command are required", nil)
		return
	}

	reply, err := s.service.HandleCommand(r.Context(), cmd)
	if err != nil {
		var domainErr *DomainError
		if errors.As(err, &domainErr) {
			writeJSON(w, domainErr.Status, map[string]any{
				"reply": reply,
				"code":  domainErr.Code,
			})
			return
		}
		writeError(w, http.StatusInternalServerError, "INTERNAL", "Command failed", nil)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"reply": reply})
}

// handleOverlaySnapshot is the pull path: a (re)connecting display fetches
// the last broadcast envelope for an event type and renders immediately.
func (s *HTTPServer) handleOverlaySnapshot(w http.ResponseWriter, r *http.Request) {
	eventType := r.URL.Query().Get("eventType")
	switch eventType {
	case broadcast.EventTopSongs, broadcast.EventRequestHistory, broadcast.EventRequestsClosed:
	default:
		writeError(w, http.StatusBadRequest, "INVALID_EVENT_TYPE", "unknown eventType", nil)
		return
	}

	payload, ok, err := s.service.CachedEnvelope(r.Context(), eventType)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "SNAPSHOT_FAILED", "Snapshot lookup failed", nil)
		return
	}
	if !ok {
		writeError(w, http.StatusNotFound, "NO_SNAPSHOT", "No broadcast recorded for that event type yet", nil)
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(payload)
}

// handleOverlayStream fans broadcast envelopes out to a display over SSE.
// On connect the cached envelopes are replayed first so the display does
// not wait for the next mutation.
func (s *HTTPServer) handleOverlayStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "STREAM_UNSUPPORTED", "Streaming unsupported", nil)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	for _, eventType := range []string{broadcast.EventTopSongs, broadcast.EventRequestHistory, broadcast.EventRequestsClosed} {
		if payload, ok, err := s.service.CachedEnvelope(r.Context(), eventType); err == nil && ok {
			fmt.Fprintf(w, "data: %s\n\n", payload)
		}
	}
	flusher.Flush()

	id, ch := s.hub.Subscribe()
	defer s.hub.Unsubscribe(id)

	for {
		select {
		case <-r.Context().Done():
			return
		case payload, open := <-ch:
			if !open {
				return
			}
			fmt.Fprintf(w, "data: %s\n\n", payload)
			flusher.Flush()
		}
	}
}

func (s *HTTPServer) withMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = randomRequestID()
		}
		ctx := context.WithValue(r.Context(), requestIDKey{}, requestID)
		r = r.WithContext(ctx)

		started := time.Now()
		writer := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		setCORSHeaders(writer.Header(), s.corsOrigin)
		writer.Header().Set("X-Request-ID", requestID)

		next.ServeHTTP(writer, r)

		log.Printf(`{"request_id":"%s","method":"%s","path":"%s","status":%d,"duration_ms":%d}`,
			requestID,
			r.Method,
			r.URL.Path,
			writer.status,
			time.Since(started).Milliseconds(),
		)
	})
}

type requestIDKey struct{}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// Flush forwards to the wrapped writer so SSE works through the recorder.
func (r *statusRecorder) Flush() {
	if flusher, ok := r.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

func randomRequestID() string {
	buf := make([]byte, 8)
	_, _ = rand.Read(buf)
	return hex.EncodeToString(buf)
}

func setCORSHeaders(header http.Header, corsOrigin string) {
	header.Set("Access-Control-Allow-Origin", corsOrigin)
	header.Set("Access-Control-Allow-Headers", "Content-Type, X-Request-ID")
	header.Set("Access-Control-Allow-Methods", "GET,POST,OPTIONS")
	header.Set("Cache-Control", "no-store")
	header.Set("Content-Type", "application/json")
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code, message string, details any) {
	response := map[string]any{
		"code":  code,
		"error": message,
	}
	if details != nil {
		response["details"] = details
	}
	writeJSON(w, status, response)
}

func decodeBody(r *http.Request, target any) error {
	if r.Body == nil {
		return nil
	}
	defer r.Body.Close()
	decoder := json.NewDecoder(r.Body)
	if err := decoder.Decode(target); err != nil {
		return fmt.Errorf("invalid JSON body")
	}
	return nil
}
