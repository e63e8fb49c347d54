package models

// Backend channel message types.
const (
	TypeTranscription        = "transcription"
	TypeLiveTranscriptUpdate = "live_transcript_update"

	TypeInitialization      = "initialization"
	TypeQuestion            = "question"
	TypeAnswerChunk         = "answer_chunk"
	TypeAnswerComplete      = "answer_complete"
	TypeCacheIndicator      = "cache_indicator"
	TypeQuestionPredictions = "question_predictions"
)

// Transcription asks the backend to answer text with the selected model.
type Transcription struct {
	Type               string `json:"type"`
	Text               string `json:"text"`
	Provider           string `json:"provider"`
	Model              string `json:"model"`
	PredictionsEnabled bool   `json:"predictions_enabled"`
}

// LiveTranscriptUpdate mirrors the in-progress transcript to other viewers.
type LiveTranscriptUpdate struct {
	Type    string `json:"type"`
	Text    string `json:"text"`
	IsFinal bool   `json:"is_final"`
}

// Envelope is used to peek at the type of an inbound message.
type Envelope struct {
	Type string `json:"type"`
}

type Initialization struct {
	ResumeSummary string `json:"resume_summary"`
	JobSummary    string `json:"job_summary"`
}

type Question struct {
	Text      string `json:"text"`
	Timestamp string `json:"timestamp"`
}

type AnswerChunk struct {
	Text      string `json:"text"`
	Timestamp string `json:"timestamp"`
}

type AnswerComplete struct {
	Timestamp string `json:"timestamp"`
}

type CacheIndicator struct {
	Cached   bool   `json:"cached"`
	HitCount int    `json:"hit_count"`
	Model    string `json:"model"`
	Provider string `json:"provider"`
}

// Prediction types.
const (
	PredictionFollowUp = "follow_up"
	PredictionRelated  = "related"
)

type Prediction struct {
	Type       string  `json:"type"`
	Question   string  `json:"question"`
	Reason     string  `json:"reason"`
	Confidence float64 `json:"confidence"`
}

type QuestionPredictions struct {
	Predictions []Prediction `json:"predictions"`
}
