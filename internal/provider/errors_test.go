package provider

import (
	"strings"
	"testing"
	"unicode/utf8"
)

func TestFormatError_Priority(t *testing.T) {
	tests := []struct {
		name       string
		shape      ErrorShape
		body       map[string]any
		status     int
		statusText string
		want       string
	}{
		{
			name:   "structured message wins",
			shape:  OpenAIErrors,
			body:   map[string]any{"error": map[string]any{"message": "bad key", "type": "auth"}},
			status: 401, statusText: "Unauthorized",
			want: "OpenAI API error (401): bad key",
		},
		{
			name:   "string error",
			shape:  OpenAIErrors,
			body:   map[string]any{"error": "plain failure"},
			status: 400, statusText: "Bad Request",
			want: "OpenAI API error (400): plain failure",
		},
		{
			name:   "gemini status string",
			shape:  GeminiErrors,
			body:   map[string]any{"error": map[string]any{"status": "PERMISSION_DENIED"}},
			status: 403, statusText: "Forbidden",
			want: "Gemini API error (403): PERMISSION_DENIED",
		},
		{
			name:   "replicate detail",
			shape:  ReplicateErrors,
			body:   map[string]any{"detail": "Invalid token."},
			status: 401, statusText: "Unauthorized",
			want: "Replicate API error (401): Invalid token.",
		},
		{
			name:   "status line fallback",
			shape:  GeminiErrors,
			body:   nil,
			status: 502, statusText: "Bad Gateway",
			want: "Gemini API error (502): Bad Gateway",
		},
		{
			name:  "generic fallback without status",
			shape: ReplicateErrors,
			body:  map[string]any{},
			want:  "Error communicating with the Replicate API.",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := FormatError(tt.shape, tt.body, tt.status, tt.statusText)
			if got != tt.want {
				t.Errorf("Expected %q, got %q", tt.want, got)
			}
		})
	}
}

func TestFormatError_Deterministic(t *testing.T) {
	body := map[string]any{"error": map[string]any{"message": "<script>x</script> boom\n\tagain"}}
	first := FormatError(OpenAIErrors, body, 500, "Internal Server Error")
	second := FormatError(OpenAIErrors, body, 500, "Internal Server Error")
	if first != second {
		t.Errorf("Expected identical output, got %q and %q", first, second)
	}
	if first != "OpenAI API error (500): x boom again" {
		t.Errorf("Expected sanitized message, got %q", first)
	}
}

func TestFormatError_Truncates(t *testing.T) {
	body := map[string]any{"error": map[string]any{"message": strings.Repeat("é", 1000)}}
	got := FormatError(OpenAIErrors, body, 429, "Too Many Requests")
	msg := strings.TrimPrefix(got, "OpenAI API error (429): ")
	if !strings.HasSuffix(msg, "...") {
		t.Errorf("Expected ellipsis marker, got %q", msg[len(msg)-10:])
	}
	if n := utf8.RuneCountInString(msg); n != MaxMessageLength+3 {
		t.Errorf("Expected %d runes, got %d", MaxMessageLength+3, n)
	}
}

func TestSanitizeText(t *testing.T) {
	cases := map[string]string{
		"  hello   world ":         "hello world",
		"<b>bold</b> text":         "bold text",
		"line1\nline2\r\n":         "line1 line2",
		"tab\there":                "tab here",
		"percent %20 octets":       "percent octets",
		"keep unicode ✓ and ünï": "keep unicode ✓ and ünï",
	}
	for in, want := range cases {
		if got := SanitizeText(in); got != want {
			t.Errorf("SanitizeText(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestSanitizeMultiline(t *testing.T) {
	if got := SanitizeMultiline("first  line\n<i>second</i>\n"); got != "first line\nsecond" {
		t.Errorf("Unexpected %q", got)
	}
}

func TestTrimPrompt(t *testing.T) {
	if TrimPrompt("\n  ") != "" {
		t.Error("Expected whitespace-only prompt to trim to empty")
	}
}
