package transcript

import (
	"fmt"
	"html"
	"strings"

	nethtml "golang.org/x/net/html"
)

// labelMarkup renders a finalized segment, prefixed with its speaker label
// when one is known. Transcript text is escaped so that StripMarkup returns
// it verbatim.
func labelMarkup(label, text string) string {
	escaped := html.EscapeString(text)
	if label == "" {
		return escaped
	}
	class := "speaker-you"
	if label == LabelInterviewer {
		class = "speaker-interviewer"
	}
	return fmt.Sprintf(`<span class="%s">[%s]:</span> %s`, class, label, escaped)
}

// interimMarkup renders the interim tail with lower emphasis.
func interimMarkup(text string) string {
	return `<span class="interim">` + html.EscapeString(text) + `</span>`
}

// StripMarkup returns the text content of s with all tags removed and
// entities decoded.
func StripMarkup(s string) string {
	var b strings.Builder
	z := nethtml.NewTokenizer(strings.NewReader(s))
	for {
		switch z.Next() {
		case nethtml.ErrorToken:
			return b.String()
		case nethtml.TextToken:
			b.Write(z.Text())
		}
	}
}
