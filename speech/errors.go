package speech

import "fmt"

type Severity int

const (
	// Benign errors are expected during normal operation and ignored.
	Benign Severity = iota
	// Recoverable errors are logged; recognition carries on.
	Recoverable
	// Fatal errors end recognition and are shown to the user.
	Fatal
)

func (s Severity) String() string {
	switch s {
	case Benign:
		return "benign"
	case Recoverable:
		return "recoverable"
	case Fatal:
		return "fatal"
	}
	return fmt.Sprintf("severity(%d)", int(s))
}

// Engine error codes.
const (
	CodeNoSpeech           = "no-speech"
	CodeAborted            = "aborted"
	CodeNetwork            = "network"
	CodeBadGrammar         = "bad-grammar"
	CodeNotAllowed         = "not-allowed"
	CodeAudioCapture       = "audio-capture"
	CodeServiceNotAllowed  = "service-not-allowed"
	CodeLanguageNotSupport = "language-not-supported"
)

type RecognitionError struct {
	Code     string
	Severity Severity
}

func (e *RecognitionError) Error() string {
	return fmt.Sprintf("speech recognition %s error: %s", e.Severity, e.Code)
}

// Message is the text shown to the user for fatal errors.
func (e *RecognitionError) Message() string {
	switch e.Code {
	case CodeNotAllowed, CodeServiceNotAllowed:
		return "Microphone access denied. Please enable microphone permissions and try again."
	case CodeAudioCapture:
		return "No microphone detected. Please connect a microphone and try again."
	case CodeLanguageNotSupport:
		return "Speech recognition does not support the selected language."
	}
	return "Speech recognition failed: " + e.Code
}

// Classify maps an engine error code to its severity. Unknown codes are
// treated as recoverable.
func Classify(code string) *RecognitionError {
	sev := Recoverable
	switch code {
	case CodeNoSpeech, CodeAborted:
		sev = Benign
	case CodeNotAllowed, CodeAudioCapture, CodeServiceNotAllowed, CodeLanguageNotSupport:
		sev = Fatal
	}
	return &RecognitionError{Code: code, Severity: sev}
}
