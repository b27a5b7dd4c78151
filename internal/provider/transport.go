package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	neturl "net/url"
	"strconv"
	"strings"
	"time"
)

// EncodeBody marshals body and, when filters are present, runs them over the
// generic map form before re-encoding.
func EncodeBody(body any, filters []BodyFilter, model, prompt, systemMessage string) ([]byte, error) {
	raw, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}
	if len(filters) == 0 {
		return raw, nil
	}

	var generic map[string]any
	if err := json.Unmarshal(raw, &generic); err != nil {
		return nil, err
	}
	for _, f := range filters {
		generic = f(generic, model, prompt, systemMessage)
	}
	return json.Marshal(generic)
}

// DecodeObject returns the body as a JSON object, or nil when it is not one.
func DecodeObject(raw []byte) map[string]any {
	var data map[string]any
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil
	}
	return data
}

// StatusText extracts the reason phrase from resp.Status ("404 Not Found" ->
// "Not Found").
func StatusText(resp *http.Response) string {
	if resp == nil {
		return ""
	}
	text := strings.TrimSpace(strings.TrimPrefix(resp.Status, strconv.Itoa(resp.StatusCode)))
	if text == "" {
		text = http.StatusText(resp.StatusCode)
	}
	return text
}

func IsSuccess(status int) bool {
	return status >= 200 && status < 300
}

// Call performs one HTTP round-trip, reads the whole body and records
// Diagnostics. Network failures come back as ErrTransport.
func Call(ctx context.Context, client *http.Client, rec *Recorder, vendor Vendor, label, method, url string, header http.Header, body []byte) (*http.Response, []byte, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	httpReq, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, nil, &Error{Kind: ErrTransport, Vendor: vendor, Message: fmt.Sprintf("%s request could not be built.", label), Err: err}
	}
	for k, vs := range header {
		for _, v := range vs {
			httpReq.Header.Add(k, v)
		}
	}

	start := time.Now()
	resp, err := client.Do(httpReq)
	if err != nil {
		rec.Record(Diagnostics{Method: method, URL: redact(url), Elapsed: time.Since(start)})
		return nil, nil, transportError(vendor, label, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	elapsed := time.Since(start)
	rec.Record(Diagnostics{
		Method:     method,
		URL:        redact(url),
		StatusCode: resp.StatusCode,
		Header:     resp.Header.Clone(),
		Body:       raw,
		Elapsed:    elapsed,
	})
	if err != nil {
		return nil, nil, transportError(vendor, label, err)
	}
	return resp, raw, nil
}

func transportError(vendor Vendor, label string, err error) *Error {
	var uerr *neturl.Error
	if errors.As(err, &uerr) {
		uerr.URL = redact(uerr.URL)
	}
	return &Error{
		Kind:    ErrTransport,
		Vendor:  vendor,
		Message: Truncate(SanitizeText(fmt.Sprintf("%s request failed: %v", label, err)), MaxMessageLength),
		Err:     err,
	}
}

// redact drops the query string so API keys passed as ?key= never reach
// diagnostics or logs.
func redact(url string) string {
	if i := strings.IndexByte(url, '?'); i >= 0 {
		return url[:i]
	}
	return url
}
