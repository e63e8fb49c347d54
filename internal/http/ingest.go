package http

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"interview-copilot/internal/service/capture"
)

var ingestUpgrader = websocket.Upgrader{
	ReadBufferSize:  8192,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// hello is the optional first text message of a capture client. A client
// sharing a screen without audio sends {"audio": false}.
type hello struct {
	Audio *bool `json:"audio"`
}

// audioIngest attaches a capture client as the system or microphone source.
// Binary messages are PCM16 LE mono frames at the configured sample rate.
func (h *handlers) audioIngest(w http.ResponseWriter, r *http.Request) {
	if h.app.Ingest == nil {
		http.Error(w, "audio ingest disabled", http.StatusNotFound)
		return
	}
	kind := chi.URLParam(r, "kind")
	if kind != capture.SourceSystem && kind != capture.SourceMicrophone {
		http.Error(w, "unknown source kind", http.StatusNotFound)
		return
	}

	conn, err := ingestUpgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn().Err(err).Msg("Ingest upgrade failed")
		return
	}
	defer conn.Close()
	logger := h.logger.With().Str("source", kind).Logger()

	msgType, first, err := conn.ReadMessage()
	if err != nil {
		return
	}
	hasAudio := true
	if msgType == websocket.TextMessage {
		var hi hello
		if err := json.Unmarshal(first, &hi); err == nil && hi.Audio != nil {
			hasAudio = *hi.Audio
		}
		first = nil
	}

	track, detach, err := h.app.Ingest.Attach(kind, hasAudio)
	if err != nil {
		logger.Warn().Err(err).Msg("Capture client rejected")
		closeWith(conn, websocket.ClosePolicyViolation, err.Error())
		return
	}
	defer detach()
	logger.Info().Bool("audio", hasAudio).Msg("Capture client attached")
	if track == nil {
		// nothing to feed; hold the connection until the client leaves
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}
	defer track.Stop()

	// the session stopping the track disconnects the client
	go func() {
		<-track.Done()
		closeWith(conn, websocket.CloseNormalClosure, "capture stopped")
	}()

	if len(first) > 0 {
		track.Push(first)
	}
	dropped := 0
	for {
		msgType, frame, err := conn.ReadMessage()
		if err != nil {
			logger.Info().Int("dropped", dropped).Msg("Capture client detached")
			return
		}
		if msgType != websocket.BinaryMessage {
			continue
		}
		if !track.Push(frame) {
			if track.Ended() {
				return
			}
			dropped++
		}
	}
}

func closeWith(conn *websocket.Conn, code int, reason string) {
	msg := websocket.FormatCloseMessage(code, reason)
	_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
}
