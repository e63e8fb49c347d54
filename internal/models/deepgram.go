package models

// DeepgramResponse is the subset of a Deepgram live message the relay reads.
// Type is "Results" for transcripts; Metadata, SpeechStarted and UtteranceEnd
// messages share the envelope.
type DeepgramResponse struct {
	Type        string          `json:"type"`
	Channel     DeepgramChannel `json:"channel"`
	IsFinal     bool            `json:"is_final"`
	SpeechFinal bool            `json:"speech_final"`
	Start       float64         `json:"start"`
	Duration    float64         `json:"duration"`
}

type DeepgramChannel struct {
	Alternatives []DeepgramAlternative `json:"alternatives"`
}

type DeepgramAlternative struct {
	Transcript string         `json:"transcript"`
	Confidence float64        `json:"confidence"`
	Words      []DeepgramWord `json:"words"`
}

type DeepgramWord struct {
	Word       string  `json:"word"`
	Start      float64 `json:"start"`
	End        float64 `json:"end"`
	Confidence float64 `json:"confidence"`
	Speaker    *int    `json:"speaker,omitempty"`
}
