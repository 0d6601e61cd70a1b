package speech

import "strings"

// Fragment is one recognition hypothesis. Interim fragments may still change;
// final ones are settled.
type Fragment struct {
	Text  string `json:"text"`
	Final bool   `json:"final"`
}

// Buffer accumulates the answer being spoken: the finalized segments in order
// plus the current interim hypothesis.
type Buffer struct {
	finals  []string
	interim string
}

// Apply folds one recognition result into the buffer. Finalized fragments are
// appended; the interim text is replaced by this result's interim text.
// It reports whether any fragment was finalized.
func (b *Buffer) Apply(frags []Fragment) bool {
	var interim strings.Builder
	finalized := false
	for _, f := range frags {
		text := strings.TrimSpace(f.Text)
		if f.Final {
			if text != "" {
				b.finals = append(b.finals, text)
				finalized = true
			}
			continue
		}
		interim.WriteString(f.Text)
	}
	b.interim = strings.TrimSpace(interim.String())
	return finalized
}

// Text is the finalized answer followed by the interim hypothesis.
func (b *Buffer) Text() string {
	text := b.Final()
	if b.interim == "" {
		return text
	}
	if text == "" {
		return b.interim
	}
	return text + " " + b.interim
}

func (b *Buffer) Final() string { return strings.Join(b.finals, " ") }

func (b *Buffer) Interim() string { return b.interim }

func (b *Buffer) Segments() []string { return append([]string(nil), b.finals...) }

func (b *Buffer) Reset() {
	b.finals = nil
	b.interim = ""
}
