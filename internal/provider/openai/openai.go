package openai

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/vnmchuo/contentgen/internal/provider"
)

const (
	defaultTemperature = 0.7
	defaultMaxTokens   = 4096

	newFamilyTemperature         = 1.0
	newFamilyMaxCompletionTokens = 128000

	fieldMaxTokens           = "max_tokens"
	fieldMaxCompletionTokens = "max_completion_tokens"

	// newFamilyPrefix marks models that reject max_tokens and only accept the
	// default temperature.
	newFamilyPrefix = "gpt-5"
)

type modelParams struct {
	temperature         float64
	maxTokens           int
	maxCompletionTokens int
}

var modelTable = map[string]modelParams{
	"gpt-4o":            {temperature: 0.7, maxTokens: 4096},
	"chatgpt-4o-latest": {temperature: 0.7, maxTokens: 16384},
	"gpt-4o-mini":       {temperature: 0.7, maxTokens: 4096},
	"gpt-5":             {temperature: 1.0, maxCompletionTokens: 128000},
	"gpt-5-mini":        {temperature: 1.0, maxCompletionTokens: 128000},
	"gpt-5-nano":        {temperature: 1.0, maxCompletionTokens: 128000},
	"gpt-5.1":           {temperature: 1.0, maxCompletionTokens: 128000},
	"gpt-5-chat-latest": {temperature: 1.0, maxCompletionTokens: 128000},
}

type OpenAIProvider struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
	filters    []provider.BodyFilter
	recorder   provider.Recorder
}

type Option func(*OpenAIProvider)

func WithTimeout(d time.Duration) Option {
	return func(p *OpenAIProvider) { p.httpClient = &http.Client{Timeout: d} }
}

func WithBaseURL(url string) Option {
	return func(p *OpenAIProvider) { p.baseURL = strings.TrimRight(url, "/") }
}

func WithBodyFilters(filters ...provider.BodyFilter) Option {
	return func(p *OpenAIProvider) { p.filters = append(p.filters, filters...) }
}

type chatRequest struct {
	Model               string        `json:"model"`
	Messages            []chatMessage `json:"messages"`
	Temperature         *float64      `json:"temperature,omitempty"`
	MaxTokens           int           `json:"max_tokens,omitempty"`
	MaxCompletionTokens int           `json:"max_completion_tokens,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	ID      string       `json:"id"`
	Choices []chatChoice `json:"choices"`
	Model   string       `json:"model"`
}

type chatChoice struct {
	Message chatMessage `json:"message"`
}

func New(apiKey string, opts ...Option) *OpenAIProvider {
	p := &OpenAIProvider{
		apiKey:     apiKey,
		baseURL:    "https://api.openai.com/v1",
		httpClient: &http.Client{Timeout: 300 * time.Second},
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Spec resolves the generation parameters for a model id. Unknown ids keep
// the defaults of their family; ids in the new family always use
// max_completion_tokens and the fixed temperature.
func Spec(model string) provider.ModelSpec {
	params := modelParams{temperature: defaultTemperature, maxTokens: defaultMaxTokens}
	if IsNewFamily(model) {
		params = modelParams{temperature: newFamilyTemperature, maxCompletionTokens: newFamilyMaxCompletionTokens}
	}
	if known, ok := modelTable[model]; ok {
		params = known
	}

	spec := provider.ModelSpec{ID: model, Temperature: params.temperature}
	if IsNewFamily(model) {
		spec.TokenField = fieldMaxCompletionTokens
		spec.TokenLimit = params.maxCompletionTokens
		if spec.TokenLimit == 0 {
			spec.TokenLimit = params.maxTokens
		}
		return spec
	}

	spec.TokenField = fieldMaxTokens
	spec.TokenLimit = params.maxTokens
	if spec.TokenLimit == 0 {
		spec.TokenLimit = defaultMaxTokens
	}
	return spec
}

func IsNewFamily(model string) bool {
	return strings.HasPrefix(model, newFamilyPrefix)
}

func (p *OpenAIProvider) mapRequest(req *provider.Request, prompt string) chatRequest {
	var messages []chatMessage
	if req.SystemMessage != "" {
		messages = append(messages, chatMessage{Role: "system", Content: req.SystemMessage})
	}
	messages = append(messages, chatMessage{Role: "user", Content: prompt})

	spec := Spec(req.Model)
	out := chatRequest{Model: req.Model, Messages: messages}

	if IsNewFamily(req.Model) {
		if spec.Temperature != 1.0 {
			t := spec.Temperature
			out.Temperature = &t
		}
		out.MaxCompletionTokens = spec.TokenLimit
		return out
	}

	t := spec.Temperature
	out.Temperature = &t
	out.MaxTokens = spec.TokenLimit
	return out
}

func (p *OpenAIProvider) SendPrompt(ctx context.Context, req *provider.Request) (*provider.Response, error) {
	prompt := provider.TrimPrompt(req.Prompt)

	body, err := provider.EncodeBody(p.mapRequest(req, prompt), p.filters, req.Model, prompt, req.SystemMessage)
	if err != nil {
		return nil, &provider.Error{Kind: provider.ErrTransport, Vendor: provider.VendorOpenAI, Message: "OpenAI request body could not be encoded.", Err: err}
	}

	header := http.Header{}
	header.Set("Content-Type", "application/json")
	header.Set("Authorization", fmt.Sprintf("Bearer %s", p.apiKey))

	url := fmt.Sprintf("%s/chat/completions", p.baseURL)
	resp, raw, err := provider.Call(ctx, p.httpClient, &p.recorder, provider.VendorOpenAI, "OpenAI", http.MethodPost, url, header, body)
	if err != nil {
		return nil, err
	}

	data := provider.DecodeObject(raw)
	fail := func(kind provider.ErrorKind) *provider.Error {
		return &provider.Error{
			Kind:    kind,
			Vendor:  provider.VendorOpenAI,
			Status:  resp.StatusCode,
			Message: provider.FormatError(provider.OpenAIErrors, data, resp.StatusCode, provider.StatusText(resp)),
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

	var chatResp chatResponse
	if err := json.Unmarshal(raw, &chatResp); err != nil || len(chatResp.Choices) == 0 || chatResp.Choices[0].Message.Content == "" {
		return nil, fail(provider.ErrEmptyOutput)
	}

	return &provider.Response{
		Text:      chatResp.Choices[0].Message.Content,
		Model:     req.Model,
		Vendor:    provider.VendorOpenAI,
		LatencyMs: p.recorder.Elapsed().Milliseconds(),
	}, nil
}

func (p *OpenAIProvider) Vendor() provider.Vendor {
	return provider.VendorOpenAI
}

func (p *OpenAIProvider) LastResponse() provider.Diagnostics {
	return p.recorder.LastResponse()
}
