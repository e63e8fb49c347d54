// Package models defines the data structures exchanged with the transcription
// service, the backend channel and the event bus.
package models

// Event types published on the event bus.
const (
	EventTranscriptPartial = "interview.transcript.partial"
	EventTranscriptFinal   = "interview.transcript.final"
)

// TranscriptPartial is a live transcript update carrying interim text.
type TranscriptPartial struct {
	EventType string `json:"eventType"`
	SessionID string `json:"sessionId"`
	Mode      string `json:"mode"`
	Timestamp int64  `json:"timestamp"`
	Text      string `json:"text"`
}

// TranscriptFinal is a live transcript update after a finalized segment.
type TranscriptFinal struct {
	EventType string `json:"eventType"`
	SessionID string `json:"sessionId"`
	Mode      string `json:"mode"`
	Timestamp int64  `json:"timestamp"`
	Text      string `json:"text"`
	Segment   string `json:"segment"`
	Speaker   string `json:"speaker,omitempty"`
}
