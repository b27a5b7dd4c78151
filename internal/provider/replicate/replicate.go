// Package replicate generates images through Replicate predictions. A
// prediction is submitted with "Prefer: wait"; when the vendor's synchronous
// window closes before output is ready the client polls the prediction until
// it settles or the poll deadline passes, then downloads the first output URL.
package replicate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/vnmchuo/contentgen/internal/provider"
)

const (
	StatusStarting   = "starting"
	StatusProcessing = "processing"
	StatusSucceeded  = "succeeded"
	StatusFailed     = "failed"
	StatusCanceled   = "canceled"
)

var errStillPending = errors.New("prediction still pending")

type ReplicateProvider struct {
	apiKey         string
	baseURL        string
	submitClient   *http.Client
	pollClient     *http.Client
	downloadClient *http.Client
	pollInterval   time.Duration
	pollDeadline   time.Duration
	filters        []provider.BodyFilter
	recorder       provider.Recorder
}

type Option func(*ReplicateProvider)

func WithBaseURL(url string) Option {
	return func(p *ReplicateProvider) { p.baseURL = strings.TrimRight(url, "/") }
}

// WithTimeouts sets the submission ceiling (the vendor waits up to 60s), the
// per-poll ceiling and the image download ceiling.
func WithTimeouts(submit, poll, download time.Duration) Option {
	return func(p *ReplicateProvider) {
		p.submitClient = &http.Client{Timeout: submit}
		p.pollClient = &http.Client{Timeout: poll}
		p.downloadClient = &http.Client{Timeout: download}
	}
}

func WithPolling(interval, deadline time.Duration) Option {
	return func(p *ReplicateProvider) {
		p.pollInterval = interval
		p.pollDeadline = deadline
	}
}

func WithBodyFilters(filters ...provider.BodyFilter) Option {
	return func(p *ReplicateProvider) { p.filters = append(p.filters, filters...) }
}

type predictionRequest struct {
	Input predictionInput `json:"input"`
}

type predictionInput struct {
	Prompt string `json:"prompt"`
}

type prediction struct {
	ID     string          `json:"id"`
	Status string          `json:"status"`
	Output json.RawMessage `json:"output"`
	URLs   struct {
		Get string `json:"get"`
	} `json:"urls"`
}

func (p prediction) pending() bool {
	return p.Status == StatusStarting || p.Status == StatusProcessing
}

// firstOutput returns the output value, or its first element when the output
// is a sequence. Absent, null and empty outputs yield "".
func (p prediction) firstOutput() string {
	if len(p.Output) == 0 {
		return ""
	}
	var single string
	if err := json.Unmarshal(p.Output, &single); err == nil {
		return strings.TrimSpace(single)
	}
	var many []any
	if err := json.Unmarshal(p.Output, &many); err == nil && len(many) > 0 {
		if s, ok := many[0].(string); ok {
			return strings.TrimSpace(s)
		}
	}
	return ""
}

func New(apiKey string, opts ...Option) *ReplicateProvider {
	p := &ReplicateProvider{
		apiKey:         apiKey,
		baseURL:        "https://api.replicate.com",
		submitClient:   &http.Client{Timeout: 65 * time.Second},
		pollClient:     &http.Client{Timeout: 15 * time.Second},
		downloadClient: &http.Client{Timeout: 60 * time.Second},
		pollInterval:   2 * time.Second,
		pollDeadline:   60 * time.Second,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *ReplicateProvider) authHeader() http.Header {
	header := http.Header{}
	header.Set("Content-Type", "application/json")
	header.Set("Authorization", fmt.Sprintf("Bearer %s", p.apiKey))
	return header
}

func (p *ReplicateProvider) SendPrompt(ctx context.Context, req *provider.Request) (*provider.Response, error) {
	prompt := provider.TrimPrompt(req.Prompt)
	start := time.Now()

	body, err := provider.EncodeBody(predictionRequest{Input: predictionInput{Prompt: prompt}}, p.filters, req.Model, prompt, "")
	if err != nil {
		return nil, &provider.Error{Kind: provider.ErrTransport, Vendor: provider.VendorReplicate, Message: "Replicate request body could not be encoded.", Err: err}
	}

	header := p.authHeader()
	header.Set("Prefer", "wait")

	url := fmt.Sprintf("%s/v1/models/%s/predictions", p.baseURL, req.Model)
	resp, raw, err := provider.Call(ctx, p.submitClient, &p.recorder, provider.VendorReplicate, "Replicate", http.MethodPost, url, header, body)
	if err != nil {
		return nil, err
	}

	pred, err := p.parsePrediction(resp, raw)
	if err != nil {
		return nil, err
	}

	polls := 0
	output := pred.firstOutput()
	if output == "" && pred.pending() {
		pollURL := pred.URLs.Get
		if pollURL == "" {
			pollURL = resp.Header.Get("Location")
		}
		if pollURL != "" {
			output, polls, err = p.poll(ctx, pollURL)
			if err != nil {
				return nil, withPolls(err, polls)
			}
		}
	}

	if output == "" {
		return nil, &provider.Error{Kind: provider.ErrEmptyOutput, Vendor: provider.VendorReplicate, Message: "Replicate API returned no output.", Polls: polls}
	}

	image, err := p.download(ctx, output)
	if err != nil {
		return nil, withPolls(err, polls)
	}

	return &provider.Response{
		Image:     image,
		Model:     req.Model,
		Vendor:    provider.VendorReplicate,
		LatencyMs: time.Since(start).Milliseconds(),
		Polls:     polls,
	}, nil
}

func withPolls(err error, polls int) error {
	var perr *provider.Error
	if errors.As(err, &perr) {
		perr.Polls = polls
	}
	return err
}

// parsePrediction applies the failure taxonomy shared by the submission and
// every poll: non-2xx, a non-object body, or an explicit error field.
func (p *ReplicateProvider) parsePrediction(resp *http.Response, raw []byte) (*prediction, error) {
	data := provider.DecodeObject(raw)
	fail := func() *provider.Error {
		return &provider.Error{
			Kind:    provider.ErrVendorRejected,
			Vendor:  provider.VendorReplicate,
			Status:  resp.StatusCode,
			Message: provider.FormatError(provider.ReplicateErrors, data, resp.StatusCode, provider.StatusText(resp)),
		}
	}

	if !provider.IsSuccess(resp.StatusCode) || data == nil {
		return nil, fail()
	}
	if hasError(data["error"]) {
		return nil, fail()
	}

	var pred prediction
	if err := json.Unmarshal(raw, &pred); err != nil {
		return nil, fail()
	}
	return &pred, nil
}

func hasError(v any) bool {
	switch e := v.(type) {
	case nil:
		return false
	case string:
		return e != ""
	case bool:
		return e
	case map[string]any:
		return len(e) > 0
	default:
		return true
	}
}

// poll re-reads the prediction every pollInterval until output appears, the
// status leaves the pending set, or pollDeadline passes. Transport and vendor
// failures end the loop immediately. It also reports how many reads it made.
func (p *ReplicateProvider) poll(ctx context.Context, pollURL string) (string, int, error) {
	timer := time.NewTimer(p.pollInterval)
	select {
	case <-ctx.Done():
		timer.Stop()
		return "", 0, p.canceled(ctx.Err())
	case <-timer.C:
	}

	polls := 0
	output := ""
	backoff := retry.WithMaxDuration(p.pollDeadline, retry.NewConstant(p.pollInterval))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		polls++

		resp, raw, err := provider.Call(ctx, p.pollClient, &p.recorder, provider.VendorReplicate, "Replicate", http.MethodGet, pollURL, p.authHeader(), nil)
		if err != nil {
			return err
		}
		pred, err := p.parsePrediction(resp, raw)
		if err != nil {
			return err
		}
		if output = pred.firstOutput(); output != "" || !pred.pending() {
			return nil
		}
		return retry.RetryableError(errStillPending)
	})

	switch {
	case err == nil:
		return output, polls, nil
	case errors.Is(err, errStillPending):
		return "", polls, &provider.Error{
			Kind:    provider.ErrPollTimeout,
			Vendor:  provider.VendorReplicate,
			Message: fmt.Sprintf("Replicate prediction did not finish within %s.", p.pollDeadline),
		}
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "", polls, p.canceled(err)
	default:
		return "", polls, err
	}
}

func (p *ReplicateProvider) canceled(err error) *provider.Error {
	return &provider.Error{Kind: provider.ErrTransport, Vendor: provider.VendorReplicate, Message: "Replicate polling was interrupted.", Err: err}
}

func (p *ReplicateProvider) download(ctx context.Context, imageURL string) ([]byte, error) {
	resp, raw, err := provider.Call(ctx, p.downloadClient, &p.recorder, provider.VendorReplicate, "Replicate image download", http.MethodGet, imageURL, nil, nil)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		msg := provider.SanitizeText(provider.StatusText(resp))
		if msg == "" {
			msg = "Failed to download generated image from Replicate."
		}
		return nil, &provider.Error{
			Kind:    provider.ErrDownload,
			Vendor:  provider.VendorReplicate,
			Status:  resp.StatusCode,
			Message: fmt.Sprintf("Replicate image download error (%d): %s", resp.StatusCode, msg),
		}
	}
	return raw, nil
}

func (p *ReplicateProvider) Vendor() provider.Vendor {
	return provider.VendorReplicate
}

func (p *ReplicateProvider) LastResponse() provider.Diagnostics {
	return p.recorder.LastResponse()
}

