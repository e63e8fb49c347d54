// Package mixer combines the system and microphone tracks of a dual-capture
// session into one mono PCM16 track.
package mixer

import (
	"encoding/binary"
	"math"
	"sync"
	"time"

	"interview-copilot/internal/service/capture"
)

// DefaultInterval is how often pending frames are mixed.
const DefaultInterval = 20 * time.Millisecond

// maxLagTicks bounds how long one source waits for the other before it is
// mixed against silence.
const maxLagTicks = 5

// Mixer sums two PCM16 LE sources sample by sample. There is no resampling,
// leveling or echo cancellation; sums saturate at the int16 range.
type Mixer struct {
	system capture.Track
	mic    capture.Track
	out    *capture.PushTrack

	interval time.Duration
	done     chan struct{}
	once     sync.Once
	wg       sync.WaitGroup

	// owned by run
	qSystem, qMic         []byte
	systemEnded, micEnded bool
	lag                   int
}

// New starts mixing system and mic. interval <= 0 selects DefaultInterval.
func New(system, mic capture.Track, interval time.Duration) *Mixer {
	if interval <= 0 {
		interval = DefaultInterval
	}
	m := &Mixer{
		system:   system,
		mic:      mic,
		out:      capture.NewPushTrack(capture.KindAudio, 256),
		interval: interval,
		done:     make(chan struct{}),
	}
	m.wg.Add(1)
	go m.run()
	return m
}

// Output returns the mixed track. It ends when both sources end or the mixer
// is closed.
func (m *Mixer) Output() capture.Track {
	return m.out
}

// Close stops mixing and ends the output track. Idempotent. The source tracks
// are left to their owner.
func (m *Mixer) Close() {
	m.once.Do(func() {
		close(m.done)
	})
	m.wg.Wait()
}

func (m *Mixer) run() {
	defer m.wg.Done()
	defer m.out.Stop()

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-m.done:
			return
		case <-ticker.C:
			m.qSystem, m.systemEnded = drain(m.system, m.qSystem, m.systemEnded)
			m.qMic, m.micEnded = drain(m.mic, m.qMic, m.micEnded)
			m.flush()
			if m.systemEnded && m.micEnded && len(m.qSystem) == 0 && len(m.qMic) == 0 {
				return
			}
		}
	}
}

func drain(t capture.Track, q []byte, ended bool) ([]byte, bool) {
	if ended {
		return q, true
	}
	for {
		select {
		case frame, ok := <-t.Frames():
			if !ok {
				return q, true
			}
			q = append(q, frame...)
		default:
			return q, false
		}
	}
}

func (m *Mixer) flush() {
	n := min(len(m.qSystem), len(m.qMic))
	longest := max(len(m.qSystem), len(m.qMic))

	// a source that ended or stalled contributes silence
	if n < longest && (m.systemEnded || m.micEnded || m.lag >= maxLagTicks) {
		n = longest
	}
	n -= n % 2
	if n == 0 {
		if longest > 0 {
			m.lag++
		}
		return
	}
	m.lag = 0

	m.out.Push(Mix(m.qSystem, m.qMic, n))
	m.qSystem = consume(m.qSystem, n)
	m.qMic = consume(m.qMic, n)
}

func consume(q []byte, n int) []byte {
	if n >= len(q) {
		return q[:0]
	}
	return append(q[:0], q[n:]...)
}

// Mix sums the first n bytes of a and b as PCM16 LE samples. Missing bytes
// count as silence.
func Mix(a, b []byte, n int) []byte {
	out := make([]byte, n)
	for i := 0; i+1 < n; i += 2 {
		s := int32(sample(a, i)) + int32(sample(b, i))
		if s > math.MaxInt16 {
			s = math.MaxInt16
		} else if s < math.MinInt16 {
			s = math.MinInt16
		}
		binary.LittleEndian.PutUint16(out[i:], uint16(int16(s)))
	}
	return out
}

func sample(q []byte, i int) int16 {
	if i+1 >= len(q) {
		return 0
	}
	return int16(binary.LittleEndian.Uint16(q[i:]))
}
