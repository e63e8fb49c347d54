package transcript

import "testing"

func TestSpeakerMap_OrderOfFirstAppearance(t *testing.T) {
	tests := []struct {
		name string
		ids  []int
		want []string
	}{
		{"single speaker", []int{0, 0, 0}, []string{"Interviewer", "Interviewer", "Interviewer"}},
		{"two speakers", []int{0, 1, 0, 1}, []string{"Interviewer", "You", "Interviewer", "You"}},
		{"ids not starting at zero", []int{5, 2}, []string{"Interviewer", "You"}},
		{"third id maps to You", []int{0, 1, 2}, []string{"Interviewer", "You", "You"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := NewSpeakerMap()
			for i, id := range tt.ids {
				if got := m.Label(id); got != tt.want[i] {
					t.Errorf("Label(%d) #%d = %q, want %q", id, i, got, tt.want[i])
				}
			}
		})
	}
}

func TestSpeakerMap_Reset(t *testing.T) {
	m := NewSpeakerMap()
	m.Label(1)
	m.Label(0)
	if m.Len() != 2 {
		t.Fatalf("expected 2 speakers, got %d", m.Len())
	}

	m.Reset()
	if m.Len() != 0 {
		t.Errorf("expected empty map after reset, got %d", m.Len())
	}
	if got := m.Label(0); got != LabelInterviewer {
		t.Errorf("expected Interviewer after reset, got %q", got)
	}
}

func TestStripMarkup(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"plain text", "plain text"},
		{`<span class="speaker-you">[You]:</span> hi`, "[You]: hi"},
		{"a &amp; b", "a & b"},
		{"<p>one</p><p>two</p>", "onetwo"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := StripMarkup(tt.in); got != tt.want {
			t.Errorf("StripMarkup(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
