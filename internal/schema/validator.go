// Package schema checks outbound backend messages before they hit the wire.
package schema

import (
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"interview-copilot/internal/models"
	"interview-copilot/internal/observability/logging"
)

// ErrInvalidMessage is returned for messages the backend would reject.
var ErrInvalidMessage = errors.New("schema: invalid message")

type Validator struct {
	logger zerolog.Logger
}

func New() *Validator {
	return &Validator{logger: logging.WithComponent("schema")}
}

// Validate checks the message type tag and required fields.
func (v *Validator) Validate(event any) error {
	var err error
	switch m := event.(type) {
	case models.Transcription:
		err = validateTranscription(&m)
	case *models.Transcription:
		err = validateTranscription(m)
	case models.LiveTranscriptUpdate:
		err = validateLiveUpdate(&m)
	case *models.LiveTranscriptUpdate:
		err = validateLiveUpdate(m)
	default:
		err = fmt.Errorf("%w: unsupported type %T", ErrInvalidMessage, event)
	}

	if err != nil {
		v.logger.Debug().Err(err).Msg("Schema validation failed")
		return err
	}
	return nil
}

func validateTranscription(m *models.Transcription) error {
	if m.Type != models.TypeTranscription {
		return fmt.Errorf("%w: type %q, want %q", ErrInvalidMessage, m.Type, models.TypeTranscription)
	}
	if strings.TrimSpace(m.Text) == "" {
		return fmt.Errorf("%w: empty text", ErrInvalidMessage)
	}
	if m.Provider == "" || m.Model == "" {
		return fmt.Errorf("%w: provider and model are required", ErrInvalidMessage)
	}
	return nil
}

func validateLiveUpdate(m *models.LiveTranscriptUpdate) error {
	if m.Type != models.TypeLiveTranscriptUpdate {
		return fmt.Errorf("%w: type %q, want %q", ErrInvalidMessage, m.Type, models.TypeLiveTranscriptUpdate)
	}
	return nil
}
