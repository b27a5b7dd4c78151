package generator

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/sony/gobreaker"

	"github.com/vnmchuo/contentgen/internal/provider"
)

// Factory builds a client for one vendor from its credential.
type Factory func(credential string) provider.Provider

type Factories map[provider.Vendor]Factory

// Route maps a model id predicate to the vendor serving it.
type Route struct {
	Vendor   provider.Vendor
	Prefixes []string
}

func (r Route) Match(model string) bool {
	for _, p := range r.Prefixes {
		if strings.HasPrefix(model, p) {
			return true
		}
	}
	return false
}

// TextRoutes is evaluated in order; the first match wins.
var TextRoutes = []Route{
	{Vendor: provider.VendorOpenAI, Prefixes: []string{"gpt-", "chatgpt"}},
	{Vendor: provider.VendorGemini, Prefixes: []string{"gemini-"}},
}

// MatchText returns the vendor serving a text model id.
func MatchText(model string) (provider.Vendor, bool) {
	for _, r := range TextRoutes {
		if r.Match(model) {
			return r.Vendor, true
		}
	}
	return "", false
}

var credentialCodes = map[provider.Vendor]string{
	provider.VendorOpenAI:    "missing_openai_key",
	provider.VendorGemini:    "missing_google_key",
	provider.VendorReplicate: "missing_replicate_key",
}

// Registry owns one client and one circuit breaker per vendor.
type Registry struct {
	credentials map[provider.Vendor]string
	providers   map[provider.Vendor]provider.Provider
	breakers    map[provider.Vendor]*gobreaker.CircuitBreaker
}

func NewRegistry(settings Settings, factories Factories) *Registry {
	credentials := map[provider.Vendor]string{
		provider.VendorOpenAI:    settings.OpenAIKey,
		provider.VendorGemini:    settings.GeminiKey,
		provider.VendorReplicate: settings.ReplicateKey,
	}

	r := &Registry{
		credentials: credentials,
		providers:   make(map[provider.Vendor]provider.Provider),
		breakers:    make(map[provider.Vendor]*gobreaker.CircuitBreaker),
	}
	for vendor, factory := range factories {
		if credentials[vendor] == "" {
			continue
		}
		r.providers[vendor] = factory(credentials[vendor])
		r.breakers[vendor] = gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        string(vendor),
			MaxRequests: 1,
			Interval:    time.Minute,
			Timeout:     30 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 5
			},
			IsSuccessful: isHealthy,
		})
	}
	return r
}

// Text resolves the client for a text model id.
func (r *Registry) Text(model string) (provider.Provider, error) {
	vendor, ok := MatchText(model)
	if !ok {
		return nil, &Error{
			Kind:    ErrUnknownModel,
			Code:    "unknown_text_model",
			Message: fmt.Sprintf("Unknown text model: %s", model),
		}
	}
	return r.vendor(vendor)
}

// Image resolves the image client.
func (r *Registry) Image() (provider.Provider, error) {
	return r.vendor(provider.VendorReplicate)
}

func (r *Registry) vendor(v provider.Vendor) (provider.Provider, error) {
	if r.credentials[v] == "" {
		return nil, &Error{
			Kind:    ErrMissingCredential,
			Code:    credentialCodes[v],
			Message: fmt.Sprintf("%s API key is missing.", v.Label()),
		}
	}
	p, ok := r.providers[v]
	if !ok {
		return nil, &Error{
			Kind:    ErrUnknownModel,
			Code:    "unsupported_vendor",
			Message: fmt.Sprintf("No %s client is available.", v.Label()),
		}
	}
	return p, nil
}

// Execute sends the request through the vendor's circuit breaker. An open
// breaker fails fast with a transport error.
func (r *Registry) Execute(ctx context.Context, p provider.Provider, req *provider.Request) (*provider.Response, error) {
	cb, ok := r.breakers[p.Vendor()]
	if !ok {
		return p.SendPrompt(ctx, req)
	}

	result, err := cb.Execute(func() (interface{}, error) {
		return p.SendPrompt(ctx, req)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, &provider.Error{
				Kind:    provider.ErrTransport,
				Vendor:  p.Vendor(),
				Message: fmt.Sprintf("%s API is temporarily unavailable.", p.Vendor().Label()),
				Err:     err,
			}
		}
		return nil, err
	}
	return result.(*provider.Response), nil
}

// BreakerState reports the breaker state per configured vendor.
func (r *Registry) BreakerState() map[provider.Vendor]string {
	out := make(map[provider.Vendor]string, len(r.breakers))
	for v, cb := range r.breakers {
		out[v] = cb.State().String()
	}
	return out
}

// isHealthy decides which failures count against a vendor. Rejections of
// the request itself (bad key, bad prompt) and caller cancellation do not.
func isHealthy(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return true
	}
	var perr *provider.Error
	if !errors.As(err, &perr) {
		return false
	}
	switch perr.Kind {
	case provider.ErrTransport, provider.ErrPollTimeout:
		return false
	case provider.ErrVendorRejected:
		return perr.Status < http.StatusInternalServerError
	}
	return true
}
