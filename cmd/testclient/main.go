// testclient is a terminal overlay viewer: it prints the live transcript the
// agent broadcasts and can copy each finalized transcript to the clipboard.
package main

import (
	"flag"
	"net/url"
	"os"
	"os/signal"
	"time"

	"github.com/atotto/clipboard"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"interview-copilot/internal/models"
	"interview-copilot/internal/service/transcript"
)

func main() {
	agent := flag.String("agent", "localhost:8000", "Agent host:port")
	copyFinal := flag.Bool("copy", false, "Copy every finalized transcript to the clipboard")
	flag.Parse()

	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})

	u := url.URL{Scheme: "ws", Host: *agent, Path: "/ws/overlay"}
	conn, _, err := websocket.DefaultDialer.Dial(u.String(), nil)
	if err != nil {
		log.Fatal().Err(err).Str("url", u.String()).Msg("Failed to connect")
	}
	defer conn.Close()
	log.Info().Str("url", u.String()).Msg("Watching live transcript")

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt)
	go func() {
		<-interrupt
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		conn.Close()
	}()

	for {
		var msg models.LiveTranscriptUpdate
		if err := conn.ReadJSON(&msg); err != nil {
			log.Info().Err(err).Msg("Disconnected")
			return
		}
		if msg.Type != models.TypeLiveTranscriptUpdate {
			continue
		}
		text := transcript.StripMarkup(msg.Text)
		if !msg.IsFinal {
			log.Debug().Str("text", text).Msg("...")
			continue
		}
		log.Info().Str("text", text).Msg("Final")
		if *copyFinal && text != "" {
			if err := clipboard.WriteAll(text); err != nil {
				log.Warn().Err(err).Msg("Clipboard unavailable")
			}
		}
	}
}
