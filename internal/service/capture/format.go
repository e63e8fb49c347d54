package capture

// MimeL16 is raw 16-bit little-endian PCM.
const MimeL16 = "audio/l16"

// DefaultBitsPerSecond is the recording bitrate requested from the platform.
const DefaultBitsPerSecond = 128000

// FormatPreference lists recording formats in order of preference.
var FormatPreference = []string{
	"audio/webm",
	"audio/webm;codecs=opus",
	"audio/mp4",
	"audio/ogg;codecs=opus",
	MimeL16,
}

// Format is the negotiated recording format.
type Format struct {
	MimeType   string
	SampleRate int
	Channels   int
}

// Raw reports whether chunks carry headerless PCM, in which case the relay
// has to announce encoding and sample rate.
func (f Format) Raw() bool {
	return f.MimeType == MimeL16
}

// NegotiateFormat picks the first preferred format the platform supports.
func NegotiateFormat(p Platform, sampleRate int) (Format, error) {
	for _, mime := range FormatPreference {
		if p.SupportsFormat(mime) {
			return Format{MimeType: mime, SampleRate: sampleRate, Channels: 1}, nil
		}
	}
	return Format{}, ErrUnsupportedFormat
}
