package orchestration

import "strings"

const (
	DefaultCorrectionStartMarker = "[CORRECTION]"
	DefaultCorrectionEndMarker   = "[/CORRECTION]"
)

// annotationFilter separates speakable reply text from correction blocks
// while the reply is still streaming. Markers may arrive split across any
// number of increments.
type annotationFilter struct {
	startMarker string
	endMarker   string

	// pending holds a trailing fragment that may still grow into a marker.
	pending string
	inBlock bool
	// spoken is set once non-space text has left the filter.
	spoken        bool
	hadCorrection bool
}

func newAnnotationFilter(startMarker, endMarker string) *annotationFilter {
	return &annotationFilter{startMarker: startMarker, endMarker: endMarker}
}

// Push consumes one increment and returns the text that may be synthesized.
func (f *annotationFilter) Push(delta string) string {
	text := f.pending + delta
	f.pending = ""

	var speakable strings.Builder
	for len(text) > 0 {
		if f.inBlock {
			if i := strings.Index(text, f.endMarker); i >= 0 {
				text = text[i+len(f.endMarker):]
				f.inBlock = false
				continue
			}
			f.pending = text[len(text)-markerPrefixSuffix(text, f.endMarker):]
			break
		}

		if !f.spoken {
			trimmed := strings.TrimLeft(text, " \t\r\n")
			if trimmed == "" {
				f.pending = text
				break
			}
			text = trimmed
		}

		if i := strings.Index(text, f.startMarker); i >= 0 {
			f.write(&speakable, text[:i])
			text = text[i+len(f.startMarker):]
			f.inBlock = true
			f.hadCorrection = true
			continue
		}
		held := markerPrefixSuffix(text, f.startMarker)
		f.write(&speakable, text[:len(text)-held])
		f.pending = text[len(text)-held:]
		break
	}
	return speakable.String()
}

func (f *annotationFilter) write(b *strings.Builder, text string) {
	if strings.TrimSpace(text) != "" {
		f.spoken = true
	}
	b.WriteString(text)
}

// Finish releases text held back as a possible marker start. It returns
// false when the reply ended inside a correction block.
func (f *annotationFilter) Finish() (string, bool) {
	if f.inBlock {
		f.pending = ""
		return "", false
	}
	rest := f.pending
	f.pending = ""
	return rest, true
}

func (f *annotationFilter) HadCorrection() bool {
	return f.hadCorrection
}

// markerPrefixSuffix returns the length of the longest suffix of text that is
// a proper prefix of marker.
func markerPrefixSuffix(text, marker string) int {
	for n := min(len(marker)-1, len(text)); n > 0; n-- {
		if strings.HasSuffix(text, marker[:n]) {
			return n
		}
	}
	return 0
}
