// Package http exposes the agent's control surface: capture control,
// settings, session history, backend pass-through and WebSocket endpoints.
package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"interview-copilot/internal/app"
	"interview-copilot/internal/backend"
	"interview-copilot/internal/service/capture"
	"interview-copilot/internal/service/notifier"
	"interview-copilot/internal/service/session"
	"interview-copilot/internal/service/stt"
	"interview-copilot/internal/service/transcript"
	"interview-copilot/internal/store"
)

const maxBodyBytes = 1 << 20

type handlers struct {
	app    *app.Application
	logger zerolog.Logger
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// statusFor maps package errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, session.ErrSessionActive), errors.Is(err, session.ErrNoSession):
		return http.StatusConflict
	case errors.Is(err, capture.ErrUnknownMode),
		errors.Is(err, transcript.ErrNothingToSubmit),
		errors.Is(err, store.ErrUnknownSetting),
		errors.Is(err, store.ErrInvalidSetting):
		return http.StatusBadRequest
	case errors.Is(err, capture.ErrPermissionDenied):
		return http.StatusForbidden
	case errors.Is(err, capture.ErrNoAudioTrack), errors.Is(err, capture.ErrUnsupportedFormat):
		return http.StatusUnprocessableEntity
	case errors.Is(err, store.ErrSessionNotFound):
		return http.StatusNotFound
	case errors.Is(err, notifier.ErrChannelClosed):
		return http.StatusServiceUnavailable
	case errors.Is(err, stt.ErrRelayError), errors.Is(err, stt.ErrRelayClosed),
		errors.Is(err, backend.ErrUploadFailed),
		errors.Is(err, backend.ErrGenerationFailed),
		errors.Is(err, backend.ErrRequestFailed):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (h *handlers) fail(w http.ResponseWriter, r *http.Request, err error) {
	code := statusFor(err)
	ev := h.logger.Warn()
	if code >= http.StatusInternalServerError {
		ev = h.logger.Error()
	}
	ev.Err(err).Str("path", r.URL.Path).Int("status", code).Msg("Request failed")
	writeJSON(w, code, errorResponse{Error: err.Error()})
}

func decodeBody(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

func (h *handlers) readiness(w http.ResponseWriter, r *http.Request) {
	if err := h.app.Ready(r.Context()); err != nil {
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}

// Capture

type startRequest struct {
	Mode string `json:"mode"`
}

type submitRequest struct {
	Text string `json:"text"`
}

func (h *handlers) captureSnapshot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.app.Controller.Snapshot())
}

func (h *handlers) captureStart(w http.ResponseWriter, r *http.Request) {
	var req startRequest
	if err := decodeBody(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}
	mode, err := capture.ParseMode(req.Mode)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	sess, err := h.app.Controller.Start(r.Context(), mode)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, sess)
}

func (h *handlers) captureStop(w http.ResponseWriter, r *http.Request) {
	h.app.Controller.Stop()
	writeJSON(w, http.StatusOK, h.app.Controller.Snapshot())
}

func (h *handlers) captureSubmit(w http.ResponseWriter, r *http.Request) {
	var req submitRequest
	if err := decodeBody(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}
	if err := h.app.Controller.Submit(r.Context(), req.Text); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (h *handlers) captureInput(w http.ResponseWriter, r *http.Request) {
	var req submitRequest
	if err := decodeBody(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}
	h.app.Controller.SetInput(req.Text)
	w.WriteHeader(http.StatusNoContent)
}

func (h *handlers) currentAnswer(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.app.QA.Current())
}

// Settings and history

type settingRequest struct {
	Value string `json:"value"`
}

func (h *handlers) getSettings(w http.ResponseWriter, r *http.Request) {
	s, err := h.app.Store.Settings(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s.Redacted())
}

func (h *handlers) putSetting(w http.ResponseWriter, r *http.Request) {
	var req settingRequest
	if err := decodeBody(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}
	key := chi.URLParam(r, "key")
	if err := h.app.Store.SetSetting(r.Context(), key, req.Value); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handlers) listSessions(w http.ResponseWriter, r *http.Request) {
	sessions, err := h.app.Store.Sessions(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if sessions == nil {
		sessions = []store.SessionRecord{}
	}
	writeJSON(w, http.StatusOK, sessions)
}

func (h *handlers) sessionHistory(w http.ResponseWriter, r *http.Request) {
	history, err := h.app.Store.History(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if history == nil {
		history = []store.QARecord{}
	}
	writeJSON(w, http.StatusOK, history)
}

// Backend pass-through

func (h *handlers) uploadDocument(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}
	f, hdr, err := r.FormFile("file")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}
	defer f.Close()

	res, err := h.app.Backend.UploadDocument(r.Context(), r.FormValue("type"), hdr.Filename, f)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.rememberLanguage(r.Context(), res.LanguageCode)
	writeJSON(w, http.StatusOK, res)
}

// rememberLanguage stores the language detected in an uploaded document so
// the next session can transcribe in it.
func (h *handlers) rememberLanguage(ctx context.Context, code string) {
	if code == "" {
		return
	}
	if err := h.app.Store.SetSetting(ctx, store.KeyDetectedLanguage, code); err != nil {
		h.logger.Warn().Err(err).Str("language", code).Msg("Failed to store detected language")
	}
}

func (h *handlers) saveJobText(w http.ResponseWriter, r *http.Request) {
	var req struct {
		JobText string `json:"job_text"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}
	res, err := h.app.Backend.SaveJobText(r.Context(), req.JobText)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.rememberLanguage(r.Context(), res.LanguageCode)
	writeJSON(w, http.StatusOK, res)
}

func (h *handlers) generateSummaries(w http.ResponseWriter, r *http.Request) {
	res, err := h.app.Backend.GenerateSummaries(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *handlers) getSummaries(w http.ResponseWriter, r *http.Request) {
	res, err := h.app.Backend.GetSummaries(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *handlers) companyQuestions(w http.ResponseWriter, r *http.Request) {
	res, err := h.app.Backend.GenerateCompanyQuestions(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// compareLLMs streams the model's answer to the caller as it arrives.
func (h *handlers) compareLLMs(w http.ResponseWriter, r *http.Request) {
	var req backend.CompareRequest
	if err := decodeBody(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}
	if strings.TrimSpace(req.Question) == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "question is required"})
		return
	}
	if req.Provider == "" || req.Model == "" {
		if s, err := h.app.Store.Settings(r.Context()); err == nil {
			req.Provider, req.Model = s.CurrentModel()
		}
	}

	flusher, _ := w.(http.Flusher)
	started := false
	_, err := h.app.Backend.CompareLLMs(r.Context(), req, func(chunk string) error {
		if !started {
			w.Header().Set("Content-Type", "text/plain; charset=utf-8")
			w.WriteHeader(http.StatusOK)
			started = true
		}
		if _, err := io.WriteString(w, chunk); err != nil {
			return err
		}
		if flusher != nil {
			flusher.Flush()
		}
		return nil
	})
	if err != nil {
		if !started {
			h.fail(w, r, err)
			return
		}
		h.logger.Warn().Err(err).Msg("Model comparison stream interrupted")
		return
	}
	if !started {
		w.WriteHeader(http.StatusOK)
	}
}

func (h *handlers) calendar(w http.ResponseWriter, r *http.Request) {
	ahead, back := queryInt(r, "days_ahead", 60), queryInt(r, "days_back", 30)
	res, err := h.app.Backend.CalendarInterviews(r.Context(), ahead, back)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *handlers) launchOverlay(w http.ResponseWriter, r *http.Request) {
	res, err := h.app.Backend.LaunchOverlay(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *handlers) uploadFAQ(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}
	f, hdr, err := r.FormFile("file")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}
	defer f.Close()

	res, err := h.app.Backend.UploadFAQ(r.Context(), hdr.Filename, f)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *handlers) faqStats(w http.ResponseWriter, r *http.Request) {
	res, err := h.app.Backend.GetFAQStats(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *handlers) faqData(w http.ResponseWriter, r *http.Request) {
	res, err := h.app.Backend.GetFAQData(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *handlers) clearFAQ(w http.ResponseWriter, r *http.Request) {
	if err := h.app.Backend.ClearFAQ(r.Context()); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func queryInt(r *http.Request, key string, def int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return def
	}
	return n
}
