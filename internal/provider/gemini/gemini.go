package gemini

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/vnmchuo/contentgen/internal/provider"
)

const (
	defaultTemperature     = 0.4
	defaultMaxOutputTokens = 8192
)

type GeminiProvider struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
	filters    []provider.BodyFilter
	recorder   provider.Recorder
}

type Option func(*GeminiProvider)

func WithTimeout(d time.Duration) Option {
	return func(p *GeminiProvider) { p.httpClient = &http.Client{Timeout: d} }
}

func WithBaseURL(url string) Option {
	return func(p *GeminiProvider) { p.baseURL = strings.TrimRight(url, "/") }
}

func WithBodyFilters(filters ...provider.BodyFilter) Option {
	return func(p *GeminiProvider) { p.filters = append(p.filters, filters...) }
}

type geminiRequest struct {
	Contents         []geminiContent  `json:"contents"`
	GenerationConfig generationConfig `json:"generationConfig"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiPart struct {
	Text string `json:"text"`
}

type generationConfig struct {
	Temperature     float64 `json:"temperature"`
	MaxOutputTokens int     `json:"maxOutputTokens"`
}

type geminiResponse struct {
	Candidates []geminiCandidate `json:"candidates"`
}

type geminiCandidate struct {
	Content geminiContent `json:"content"`
}

func New(apiKey string, opts ...Option) *GeminiProvider {
	p := &GeminiProvider{
		apiKey:     apiKey,
		baseURL:    "https://generativelanguage.googleapis.com",
		httpClient: &http.Client{Timeout: 300 * time.Second},
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func Spec(model string) provider.ModelSpec {
	return provider.ModelSpec{
		ID:          model,
		Temperature: defaultTemperature,
		TokenField:  "maxOutputTokens",
		TokenLimit:  defaultMaxOutputTokens,
	}
}

func (p *GeminiProvider) mapRequest(req *provider.Request, prompt string) geminiRequest {
	var parts []geminiPart
	if req.SystemMessage != "" {
		parts = append(parts, geminiPart{Text: req.SystemMessage})
	}
	parts = append(parts, geminiPart{Text: prompt})

	spec := Spec(req.Model)
	return geminiRequest{
		Contents: []geminiContent{{Parts: parts}},
		GenerationConfig: generationConfig{
			Temperature:     spec.Temperature,
			MaxOutputTokens: spec.TokenLimit,
		},
	}
}

func (p *GeminiProvider) SendPrompt(ctx context.Context, req *provider.Request) (*provider.Response, error) {
	prompt := provider.TrimPrompt(req.Prompt)

	body, err := provider.EncodeBody(p.mapRequest(req, prompt), p.filters, req.Model, prompt, req.SystemMessage)
	if err != nil {
		return nil, &provider.Error{Kind: provider.ErrTransport, Vendor: provider.VendorGemini, Message: "Gemini request body could not be encoded.", Err: err}
	}

	header := http.Header{}
	header.Set("Content-Type", "application/json")

	endpoint := fmt.Sprintf("%s/v1beta/models/%s:generateContent?key=%s", p.baseURL, url.PathEscape(req.Model), url.QueryEscape(p.apiKey))
	resp, raw, err := provider.Call(ctx, p.httpClient, &p.recorder, provider.VendorGemini, "Gemini", http.MethodPost, endpoint, header, body)
	if err != nil {
		return nil, err
	}

	data := provider.DecodeObject(raw)
	fail := func(kind provider.ErrorKind) *provider.Error {
		return &provider.Error{
			Kind:    kind,
			Vendor:  provider.VendorGemini,
			Status:  resp.StatusCode,
			Message: provider.FormatError(provider.GeminiErrors, data, resp.StatusCode, provider.StatusText(resp)),
		}
	}

	if !provider.IsSuccess(resp.StatusCode) {
		return nil, fail(provider.ErrVendorRejected)
	}
	if errObj, ok := data["error"].(map[string]any); ok {
		if msg, _ := errObj["message"].(string); msg != "" {
			return nil, fail(provider.ErrVendorRejected)
		}
	}

	var geminiResp geminiResponse
	if err := json.Unmarshal(raw, &geminiResp); err != nil || len(geminiResp.Candidates) == 0 || len(geminiResp.Candidates[0].Content.Parts) == 0 {
		return nil, fail(provider.ErrEmptyOutput)
	}

	// Thinking models may prepend non-final parts; the answer is the last one.
	parts := geminiResp.Candidates[0].Content.Parts
	text := parts[len(parts)-1].Text
	if text == "" {
		return nil, fail(provider.ErrEmptyOutput)
	}

	return &provider.Response{
		Text:      text,
		Model:     req.Model,
		Vendor:    provider.VendorGemini,
		LatencyMs: p.recorder.Elapsed().Milliseconds(),
	}, nil
}

func (p *GeminiProvider) Vendor() provider.Vendor {
	return provider.VendorGemini
}

func (p *GeminiProvider) LastResponse() provider.Diagnostics {
	return p.recorder.LastResponse()
}
