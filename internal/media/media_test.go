package media

import (
	"bytes"
	"context"
	"image"
	"image/png"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

func pngOf(t *testing.T, w, h int) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, w, h))); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func TestInspect(t *testing.T) {
	info := Inspect(pngOf(t, 3, 2))
	if info.MimeType != "image/png" || info.Ext != "png" {
		t.Errorf("Expected png, got %+v", info)
	}
	if info.Width != 3 || info.Height != 2 {
		t.Errorf("Expected 3x2, got %dx%d", info.Width, info.Height)
	}

	unknown := Inspect([]byte("definitely not an image"))
	if unknown.Ext != "png" || unknown.Width != 0 {
		t.Errorf("Expected png fallback without dimensions, got %+v", unknown)
	}
}

func TestFileNameAndKey(t *testing.T) {
	now := time.Unix(1700000000, 0).UTC()
	name := FileName("post", 42, "jpg", now)
	if name != "contentgen-post-42-1700000000.jpg" {
		t.Errorf("Unexpected name %s", name)
	}
	if key := Key(name, now); key != "2023/11/"+name {
		t.Errorf("Unexpected key %s", key)
	}
}

func TestFSStorage_Put(t *testing.T) {
	dir := t.TempDir()
	s := NewFSStorage(dir, "http://localhost:8080/media/")

	obj, err := s.Put(context.Background(), "2024/01/a.png", []byte("abc"), "image/png")
	if err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if obj.URL != "http://localhost:8080/media/2024/01/a.png" {
		t.Errorf("Unexpected url %s", obj.URL)
	}
	raw, err := os.ReadFile(filepath.Join(dir, "2024", "01", "a.png"))
	if err != nil || string(raw) != "abc" {
		t.Errorf("Expected file content abc, got %q (%v)", raw, err)
	}

	if _, err := s.Put(context.Background(), "../escape.png", nil, "image/png"); err == nil {
		t.Error("Expected error for escaping key")
	}
}

func TestS3Storage_Put(t *testing.T) {
	var (
		mu          sync.Mutex
		method      string
		path        string
		contentType string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		method, path, contentType = r.Method, r.URL.Path, r.Header.Get("Content-Type")
		mu.Unlock()
		_, _ = io.Copy(io.Discard, r.Body)
		w.Header().Set("ETag", `"etag"`)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	cfg := S3Config{Endpoint: srv.URL, Region: "us-east-1", Bucket: "media", AccessKey: "a", SecretKey: "b"}
	s := NewS3Storage(Connect(cfg), cfg)

	obj, err := s.Put(context.Background(), "2024/01/a.png", pngOf(t, 1, 1), "image/png")
	if err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if method != http.MethodPut || path != "/media/2024/01/a.png" {
		t.Errorf("Expected PUT /media/2024/01/a.png, got %s %s", method, path)
	}
	if contentType != "image/png" {
		t.Errorf("Expected content type image/png, got %s", contentType)
	}
	if obj.URL != srv.URL+"/media/2024/01/a.png" {
		t.Errorf("Unexpected url %s", obj.URL)
	}
}
