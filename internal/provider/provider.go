package provider

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"time"
)

type Vendor string

const (
	VendorOpenAI    Vendor = "openai"
	VendorGemini    Vendor = "gemini"
	VendorReplicate Vendor = "replicate"
)

// Label is the human-readable vendor name used in messages.
func (v Vendor) Label() string {
	switch v {
	case VendorOpenAI:
		return "OpenAI"
	case VendorGemini:
		return "Google Gemini"
	case VendorReplicate:
		return "Replicate"
	}
	return string(v)
}

type Request struct {
	Model         string
	Prompt        string
	SystemMessage string
}

// Response carries either generated text (text vendors) or raw image bytes
// (image vendors), never both.
type Response struct {
	Text      string
	Image     []byte
	Model     string
	Vendor    Vendor
	LatencyMs int64
	// Polls counts the status reads an asynchronous vendor needed.
	Polls     int
}

type Provider interface {
	SendPrompt(ctx context.Context, req *Request) (*Response, error)
	Vendor() Vendor
	LastResponse() Diagnostics
}

// ModelSpec is the resolved generation parameter set for one model id.
type ModelSpec struct {
	ID          string
	Temperature float64
	TokenField  string
	TokenLimit  int
}

// BodyFilter rewrites a request body immediately before it is sent. Filters
// run in order; the result is treated as opaque.
type BodyFilter func(body map[string]any, model, prompt, systemMessage string) map[string]any

// TrimPrompt is applied to every prompt before transmission. Empty prompts are
// still sent.
func TrimPrompt(prompt string) string {
	return strings.TrimSpace(prompt)
}

// Diagnostics describes the last transport call a client made. It is a side
// channel for logging and debugging only.
type Diagnostics struct {
	Method     string
	URL        string
	StatusCode int
	Header     http.Header
	Body       []byte
	Elapsed    time.Duration
}

// Recorder keeps the Diagnostics of the most recent transport call.
type Recorder struct {
	mu   sync.Mutex
	last Diagnostics
}

func (r *Recorder) Record(d Diagnostics) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.last = d
}

func (r *Recorder) LastResponse() Diagnostics {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.last
}

// Elapsed returns the wall-clock time of the last transport call.
func (r *Recorder) Elapsed() time.Duration {
	return r.LastResponse().Elapsed
}
