// Package media stores generated images and derives the metadata the content
// store keeps for each attachment.
package media

import (
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"net/http"
	"time"
)

type Object struct {
	Key  string
	URL  string
	Size int64
}

type Storage interface {
	Put(ctx context.Context, key string, data []byte, contentType string) (*Object, error)
}

type Info struct {
	MimeType string
	Ext      string
	Width    int
	Height   int
}

var extensions = map[string]string{
	"image/png":  "png",
	"image/jpeg": "jpg",
	"image/gif":  "gif",
	"image/webp": "webp",
}

// Inspect sniffs the content type and, for formats the standard decoders
// know, the pixel dimensions. Unknown formats fall back to png.
func Inspect(data []byte) Info {
	info := Info{MimeType: http.DetectContentType(data)}
	ext, ok := extensions[info.MimeType]
	if !ok {
		info.MimeType = "image/png"
		ext = "png"
	}
	info.Ext = ext

	if cfg, _, err := image.DecodeConfig(bytes.NewReader(data)); err == nil {
		info.Width = cfg.Width
		info.Height = cfg.Height
	}
	return info
}

// FileName returns "contentgen-<type>-<id>-<unix>.<ext>".
func FileName(contentType string, postID int64, ext string, now time.Time) string {
	return fmt.Sprintf("contentgen-%s-%d-%d.%s", contentType, postID, now.Unix(), ext)
}

// Key places a file under a year/month prefix.
func Key(name string, now time.Time) string {
	return fmt.Sprintf("%04d/%02d/%s", now.Year(), int(now.Month()), name)
}
