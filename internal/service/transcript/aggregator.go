package transcript

import (
	"html"
	"strings"
	"sync"
)

// Event is an input to the aggregator.
type Event interface {
	isEvent()
}

// CaptureStarted is applied when a capture session becomes active.
type CaptureStarted struct{}

// PartialArrived carries an interim result. Speaker is nil unless the relay
// runs with diarization.
type PartialArrived struct {
	Text    string
	Speaker *int
}

// FinalArrived carries a finalized result.
type FinalArrived struct {
	Text    string
	Speaker *int
}

// Submitted is the user pressing Enter with the given input box content.
type Submitted struct {
	Manual string
}

// CaptureStopped is applied when the capture session ends for any reason.
type CaptureStopped struct{}

func (CaptureStarted) isEvent() {}
func (PartialArrived) isEvent() {}
func (FinalArrived) isEvent()   {}
func (Submitted) isEvent()      {}
func (CaptureStopped) isEvent() {}

// RenderKind identifies a side effect the owner of the aggregator performs.
type RenderKind int

const (
	// RenderShowFinalized shows Text (finalized markup only).
	RenderShowFinalized RenderKind = iota
	// RenderShowInterim shows Text (finalized markup followed by the styled interim tail).
	RenderShowInterim
	// RenderClearDisplay resets the live transcript display.
	RenderClearDisplay
	// RenderClearInput empties the manual input box.
	RenderClearInput
	RenderEnableInput
	RenderDisableInput
	// RenderBroadcast mirrors Text to other viewers with IsFinal.
	RenderBroadcast
	// RenderSend submits Text (markup stripped) for answer generation.
	RenderSend
)

func (k RenderKind) String() string {
	switch k {
	case RenderShowFinalized:
		return "show_finalized"
	case RenderShowInterim:
		return "show_interim"
	case RenderClearDisplay:
		return "clear_display"
	case RenderClearInput:
		return "clear_input"
	case RenderEnableInput:
		return "enable_input"
	case RenderDisableInput:
		return "disable_input"
	case RenderBroadcast:
		return "broadcast"
	case RenderSend:
		return "send"
	default:
		return "unknown"
	}
}

// Render is one instruction produced by a transition.
type Render struct {
	Kind    RenderKind
	Text    string
	IsFinal bool
}

// Snapshot is a copy of the aggregator state.
type Snapshot struct {
	State State

	// Finalized is markup: speaker spans around escaped transcript text.
	Finalized string

	// Interim is the raw text of the latest partial.
	Interim string

	Speakers map[int]string
}

// Display returns the markup shown in the live transcript box.
func (s Snapshot) Display() string {
	if s.Interim == "" {
		return s.Finalized
	}
	return s.Finalized + interimMarkup(s.Interim)
}

// Text returns the finalized transcript as plain text, each result followed
// by a space.
func (s Snapshot) Text() string {
	return StripMarkup(s.Finalized)
}

// Aggregator is the transcript state machine.
//
// State transitions:
//
//	IDLE ── CaptureStarted ──→ LISTENING
//	LISTENING ── PartialArrived / FinalArrived / Submitted ──→ LISTENING
//	LISTENING ── CaptureStopped ──→ IDLE
//
// Rules:
//   - finalized text only grows, until a submit or stop clears it
//   - interim text is replaced by every partial and cleared by every final
//   - results with empty text change nothing
//   - manual input wins over the finalized text on submit
type Aggregator struct {
	mu        sync.Mutex
	state     State
	finalized strings.Builder
	interim   string
	speakers  *SpeakerMap
}

// New returns an aggregator in IDLE state.
func New() *Aggregator {
	return &Aggregator{speakers: NewSpeakerMap()}
}

// Snapshot returns the current state.
func (a *Aggregator) Snapshot() Snapshot {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.snapshotLocked()
}

// Apply runs one transition and returns the resulting state together with the
// render instructions for it. On error the state is unchanged.
func (a *Aggregator) Apply(ev Event) (Snapshot, []Render, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	var (
		renders []Render
		err     error
	)
	switch e := ev.(type) {
	case CaptureStarted:
		renders, err = a.start()
	case PartialArrived:
		renders, err = a.partial(e)
	case FinalArrived:
		renders, err = a.final(e)
	case Submitted:
		renders, err = a.submit(e)
	case CaptureStopped:
		renders = a.stop()
	}
	return a.snapshotLocked(), renders, err
}

func (a *Aggregator) start() ([]Render, error) {
	if a.state == StateListening {
		return nil, ErrAlreadyListening
	}
	a.clear()
	a.state = StateListening
	return []Render{
		{Kind: RenderClearDisplay},
		{Kind: RenderEnableInput},
	}, nil
}

func (a *Aggregator) partial(e PartialArrived) ([]Render, error) {
	if a.state != StateListening {
		return nil, ErrNotListening
	}
	if e.Text == "" {
		return nil, nil
	}
	a.interim = e.Text
	finalized := a.finalized.String()
	return []Render{
		{Kind: RenderShowInterim, Text: finalized + interimMarkup(a.interim)},
		{Kind: RenderBroadcast, Text: finalized + html.EscapeString(a.interim), IsFinal: false},
	}, nil
}

func (a *Aggregator) final(e FinalArrived) ([]Render, error) {
	if a.state != StateListening {
		return nil, ErrNotListening
	}
	if e.Text == "" {
		return nil, nil
	}
	label := ""
	if e.Speaker != nil {
		label = a.speakers.Label(*e.Speaker)
	}
	a.finalized.WriteString(labelMarkup(label, e.Text))
	a.finalized.WriteString(" ")
	a.interim = ""
	finalized := a.finalized.String()
	return []Render{
		{Kind: RenderShowFinalized, Text: finalized},
		{Kind: RenderBroadcast, Text: finalized, IsFinal: true},
	}, nil
}

func (a *Aggregator) submit(e Submitted) ([]Render, error) {
	if a.state != StateListening {
		return nil, ErrNotListening
	}
	effective := strings.TrimSpace(e.Manual)
	if effective == "" {
		effective = a.finalized.String()
	}
	text := strings.TrimSpace(StripMarkup(effective))
	if text == "" {
		return nil, ErrNothingToSubmit
	}
	a.clear()
	return []Render{
		{Kind: RenderSend, Text: text},
		{Kind: RenderClearInput},
		{Kind: RenderClearDisplay},
	}, nil
}

func (a *Aggregator) stop() []Render {
	a.clear()
	a.speakers.Reset()
	a.state = StateIdle
	return []Render{
		{Kind: RenderDisableInput},
		{Kind: RenderClearInput},
		{Kind: RenderClearDisplay},
	}
}

func (a *Aggregator) clear() {
	a.finalized.Reset()
	a.interim = ""
}

func (a *Aggregator) snapshotLocked() Snapshot {
	return Snapshot{
		State:     a.state,
		Finalized: a.finalized.String(),
		Interim:   a.interim,
		Speakers:  a.speakers.Labels(),
	}
}
