package generator

import (
	"bytes"
	"context"
	"image"
	"image/png"
	"io"
	log "log/slog"
	"sync"
	"testing"
	"time"

	"github.com/vnmchuo/contentgen/internal/media"
	"github.com/vnmchuo/contentgen/internal/provider"
	"github.com/vnmchuo/contentgen/internal/store"
)

type fakeProvider struct {
	vendor  provider.Vendor
	mu      sync.Mutex
	calls   []provider.Request
	respond func(req *provider.Request) (*provider.Response, error)
}

func (f *fakeProvider) SendPrompt(ctx context.Context, req *provider.Request) (*provider.Response, error) {
	f.mu.Lock()
	f.calls = append(f.calls, *req)
	f.mu.Unlock()
	return f.respond(req)
}

func (f *fakeProvider) Vendor() provider.Vendor { return f.vendor }

func (f *fakeProvider) LastResponse() provider.Diagnostics { return provider.Diagnostics{} }

func (f *fakeProvider) Calls() []provider.Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]provider.Request(nil), f.calls...)
}

func textReply(text string) func(*provider.Request) (*provider.Response, error) {
	return func(req *provider.Request) (*provider.Response, error) {
		return &provider.Response{Text: text, Model: req.Model}, nil
	}
}

func imageReply(data []byte) func(*provider.Request) (*provider.Response, error) {
	return func(req *provider.Request) (*provider.Response, error) {
		return &provider.Response{Image: data, Model: req.Model}, nil
	}
}

func failWith(err error) func(*provider.Request) (*provider.Response, error) {
	return func(req *provider.Request) (*provider.Response, error) {
		return nil, err
	}
}

type fixture struct {
	gen       *Generator
	store     *store.MemoryStore
	openai    *fakeProvider
	gemini    *fakeProvider
	replicate *fakeProvider
	mediaDir  string
}

func testSettings() Settings {
	return Settings{
		OpenAIKey:         "sk-test",
		GeminiKey:         "g-test",
		ReplicateKey:      "r-test",
		DefaultImageModel: "black-forest-labs/flux-dev",
		SiteName:          "Test Site",
	}
}

func newFixture(t *testing.T, settings Settings) *fixture {
	t.Helper()
	f := &fixture{
		store:     store.NewMemoryStore(),
		openai:    &fakeProvider{vendor: provider.VendorOpenAI, respond: textReply("")},
		gemini:    &fakeProvider{vendor: provider.VendorGemini, respond: textReply("")},
		replicate: &fakeProvider{vendor: provider.VendorReplicate, respond: imageReply(nil)},
		mediaDir:  t.TempDir(),
	}
	f.gen = New(Options{
		Settings: settings,
		Factories: Factories{
			provider.VendorOpenAI:    func(string) provider.Provider { return f.openai },
			provider.VendorGemini:    func(string) provider.Provider { return f.gemini },
			provider.VendorReplicate: func(string) provider.Provider { return f.replicate },
		},
		Store:  f.store,
		Media:  media.NewFSStorage(f.mediaDir, "/media"),
		Logger: log.New(log.NewTextHandler(io.Discard, nil)),
		Now:    func() time.Time { return time.Unix(1700000000, 0).UTC() },
	})
	return f
}

func testPNG(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 4, 3))); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}
