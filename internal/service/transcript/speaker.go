package transcript

// Speaker labels.
const (
	LabelInterviewer = "Interviewer"
	LabelYou         = "You"
)

// SpeakerMap assigns labels to diarized speaker ids in order of first
// appearance. The first id is the interviewer; every later id is the
// candidate, so at most two labels ever exist.
type SpeakerMap struct {
	labels map[int]string
}

// NewSpeakerMap returns an empty map.
func NewSpeakerMap() *SpeakerMap {
	return &SpeakerMap{labels: make(map[int]string)}
}

// Label returns the label for id, assigning one on first sight.
func (m *SpeakerMap) Label(id int) string {
	if label, ok := m.labels[id]; ok {
		return label
	}
	label := LabelYou
	if len(m.labels) == 0 {
		label = LabelInterviewer
	}
	m.labels[id] = label
	return label
}

// Len returns the number of distinct speaker ids seen.
func (m *SpeakerMap) Len() int {
	return len(m.labels)
}

// Labels returns a copy of the current assignments.
func (m *SpeakerMap) Labels() map[int]string {
	out := make(map[int]string, len(m.labels))
	for id, label := range m.labels {
		out[id] = label
	}
	return out
}

// Reset forgets all assignments.
func (m *SpeakerMap) Reset() {
	m.labels = make(map[int]string)
}
