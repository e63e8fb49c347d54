// audioclient streams a WAV file to the agent as a capture source, the way a
// browser tab or microphone client would.
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"io"
	"net/http"
	"net/url"
	"os"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"interview-copilot/internal/service/capture"
)

// 20ms frames are what the mixer ticks on.
const frameInterval = 20 * time.Millisecond

func main() {
	audioFile := flag.String("audio", "testdata/sample-16khz.wav", "Path to WAV file (16-bit mono PCM)")
	agent := flag.String("agent", "localhost:8000", "Agent host:port")
	kind := flag.String("kind", capture.SourceMicrophone, "Source kind: system or microphone")
	start := flag.String("start", "", "Also start a capture session in this mode (system-audio, microphone, dual)")
	noAudio := flag.Bool("no-audio", false, "Attach as a source without an audio track")
	flag.Parse()

	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})

	f, err := os.Open(*audioFile)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open audio file")
	}
	defer f.Close()

	info, err := capture.ReadWAVHeader(f)
	if err != nil {
		log.Fatal().Err(err).Msg("Unsupported WAV file")
	}
	log.Info().
		Int("sampleRate", info.SampleRate).
		Int("channels", info.Channels).
		Int("bitsPerSample", info.BitsPerSample).
		Msg("WAV file")

	u := url.URL{Scheme: "ws", Host: *agent, Path: "/ws/audio/" + *kind}
	conn, _, err := websocket.DefaultDialer.Dial(u.String(), nil)
	if err != nil {
		log.Fatal().Err(err).Str("url", u.String()).Msg("Failed to connect")
	}
	defer conn.Close()
	log.Info().Str("url", u.String()).Msg("Connected")

	hello, _ := json.Marshal(map[string]bool{"audio": !*noAudio})
	if err := conn.WriteMessage(websocket.TextMessage, hello); err != nil {
		log.Fatal().Err(err).Msg("Failed to send hello")
	}

	if *start != "" {
		go startCapture(*agent, *start)
	}

	// the agent closes the connection when the session stops
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	if *noAudio {
		<-closed
		return
	}

	frameSize := info.SampleRate * 2 * int(frameInterval/time.Millisecond) / 1000
	frame := make([]byte, frameSize)
	ticker := time.NewTicker(frameInterval)
	defer ticker.Stop()

	var total, frames int
	started := time.Now()
	for {
		n, err := io.ReadFull(f, frame)
		if n > 0 {
			if werr := conn.WriteMessage(websocket.BinaryMessage, frame[:n]); werr != nil {
				log.Warn().Err(werr).Msg("Agent closed the source")
				return
			}
			total += n
			frames++
			if frames%50 == 0 {
				log.Info().Int("frames", frames).Int("bytes", total).Msg("Streaming")
			}
		}
		if err != nil {
			break
		}
		select {
		case <-ticker.C:
		case <-closed:
			log.Info().Msg("Capture stopped by agent")
			return
		}
	}

	log.Info().
		Int("frames", frames).
		Int("bytes", total).
		Dur("elapsed", time.Since(started)).
		Msg("Finished streaming")
	conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "done"),
		time.Now().Add(time.Second))
}

func startCapture(agent, mode string) {
	// give the agent a moment to register this source
	time.Sleep(200 * time.Millisecond)
	body, _ := json.Marshal(map[string]string{"mode": mode})
	resp, err := http.Post("http://"+agent+"/v1/capture/start", "application/json", bytes.NewReader(body))
	if err != nil {
		log.Error().Err(err).Msg("Failed to start capture")
		return
	}
	defer resp.Body.Close()
	msg, _ := io.ReadAll(resp.Body)
	log.Info().Int("status", resp.StatusCode).Str("response", string(bytes.TrimSpace(msg))).Msg("Capture start")
}
