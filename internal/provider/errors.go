package provider

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

type ErrorKind string

const (
	ErrTransport      ErrorKind = "transport_failure"
	ErrVendorRejected ErrorKind = "vendor_rejected"
	ErrEmptyOutput    ErrorKind = "empty_output"
	ErrPollTimeout    ErrorKind = "poll_timeout"
	ErrDownload       ErrorKind = "download_failure"
)

// MaxMessageLength caps the sanitized vendor message, excluding the
// "<Vendor> API error (<status>): " prefix and the ellipsis marker.
const MaxMessageLength = 400

// Error is the only error type a Provider returns.
type Error struct {
	Kind    ErrorKind
	Vendor  Vendor
	Status  int
	Message string
	// Polls is set when the failure happened after status reads began.
	Polls   int
	Err     error
}

func (e *Error) Error() string {
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf reports the ErrorKind of err, or "" when err is not a provider error.
func KindOf(err error) ErrorKind {
	var perr *Error
	if errors.As(err, &perr) {
		return perr.Kind
	}
	return ""
}

// ErrorShape describes where a vendor puts its human-readable error text.
type ErrorShape struct {
	Label    string
	Fallback string
	// Fields are tried in order; each is a path into the decoded body. The
	// value at the path must be a non-empty string to be used.
	Fields [][]string
}

var (
	OpenAIErrors = ErrorShape{
		Label:    "OpenAI",
		Fallback: "Error communicating with the OpenAI API.",
		Fields:   [][]string{{"error", "message"}, {"error"}, {"error", "type"}},
	}
	GeminiErrors = ErrorShape{
		Label:    "Gemini",
		Fallback: "Error communicating with the Google Gemini API.",
		Fields:   [][]string{{"error", "message"}, {"error", "status"}},
	}
	ReplicateErrors = ErrorShape{
		Label:    "Replicate",
		Fallback: "Error communicating with the Replicate API.",
		Fields:   [][]string{{"error"}, {"error", "detail"}, {"detail"}, {"title"}},
	}
)

// FormatError turns a decoded vendor body (nil when the body was not a JSON
// object), an HTTP status and the status reason text into a bounded,
// sanitized message. It has no side effects.
func FormatError(shape ErrorShape, body map[string]any, status int, statusText string) string {
	message := ""
	for _, path := range shape.Fields {
		if s, ok := lookupString(body, path); ok && strings.TrimSpace(s) != "" {
			message = s
			break
		}
	}
	if message == "" {
		message = statusText
	}
	message = SanitizeText(message)
	if message == "" {
		message = shape.Fallback
	}
	message = Truncate(message, MaxMessageLength)

	if status > 0 {
		return fmt.Sprintf("%s API error (%d): %s", shape.Label, status, message)
	}
	return message
}

func lookupString(body map[string]any, path []string) (string, bool) {
	var cur any = body
	for _, key := range path {
		m, ok := cur.(map[string]any)
		if !ok {
			return "", false
		}
		cur, ok = m[key]
		if !ok {
			return "", false
		}
	}
	s, ok := cur.(string)
	return s, ok
}

var (
	tagPattern   = regexp.MustCompile(`<[^>]*>`)
	octetPattern = regexp.MustCompile(`%[a-fA-F0-9]{2}`)
	spacePattern = regexp.MustCompile(`\s+`)
)

// SanitizeText strips markup, percent-encoded octets and control characters,
// collapses whitespace to single spaces and trims the result.
func SanitizeText(s string) string {
	if !utf8.ValidString(s) {
		s = strings.ToValidUTF8(s, "")
	}
	s = tagPattern.ReplaceAllString(s, "")
	s = octetPattern.ReplaceAllString(s, "")
	s = strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return ' '
		}
		return r
	}, s)
	s = spacePattern.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

// SanitizeMultiline is SanitizeText that keeps line breaks.
func SanitizeMultiline(s string) string {
	lines := strings.Split(strings.ReplaceAll(s, "\r\n", "\n"), "\n")
	for i, line := range lines {
		lines[i] = SanitizeText(line)
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}

// Truncate shortens s to max runes and appends "..." when it was longer.
func Truncate(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	return string([]rune(s)[:max]) + "..."
}
