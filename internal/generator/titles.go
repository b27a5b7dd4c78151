package generator

import (
	"context"
	"encoding/json"
	"strings"

	"go.opentelemetry.io/otel/attribute"

	"github.com/vnmchuo/contentgen/internal/prompt"
	"github.com/vnmchuo/contentgen/internal/provider"
)

type TitlesRequest struct {
	Posts          int
	Pages          int
	Instructions   string
	Model          string
	GenerateImages bool
}

type PostTitle struct {
	Title                   string   `json:"title"`
	Categories              []string `json:"categories"`
	Tags                    []string `json:"tags"`
	IllustrationDescription string   `json:"illustration_description"`
}

type PageTitle struct {
	Title string `json:"title"`
}

type TitleBatch struct {
	Posts []PostTitle `json:"posts"`
	Pages []PageTitle `json:"pages"`
}

// Titles asks the text model for a batch of post and page titles and
// normalizes whatever it returns. Entries without a title are dropped.
func (g *Generator) Titles(ctx context.Context, req TitlesRequest) (*TitleBatch, error) {
	ctx, span := g.tracer.Start(ctx, "generator.titles")
	defer span.End()

	posts, pages := max(req.Posts, 0), max(req.Pages, 0)
	if posts == 0 && pages == 0 {
		return nil, validationError("invalid_counts", "You must request at least one post or page.")
	}

	model, err := textModel(req.Model)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(
		attribute.String("model", model),
		attribute.Int("posts", posts),
		attribute.Int("pages", pages),
	)

	p, err := g.registry.Text(model)
	if err != nil {
		return nil, err
	}

	text := g.prompts.Titles(prompt.TitlesInput{
		Posts:           posts,
		Pages:           pages,
		Instructions:    req.Instructions,
		Illustrations:   req.GenerateImages,
		SiteName:        g.settings.SiteName,
		SiteDescription: g.settings.SiteDescription,
	})
	resp, err := g.call(ctx, "titles", p, &provider.Request{Model: model, Prompt: text})
	if err != nil {
		return nil, err
	}

	data, ok := decodeObject(resp.Text)
	if !ok {
		return nil, &Error{
			Kind:    ErrInvalidJSON,
			Code:    "invalid_titles_json",
			Message: "The AI returned an invalid JSON structure for titles.",
		}
	}

	batch := &TitleBatch{
		Posts: truncate(normalizePosts(data["posts"], req.GenerateImages), posts),
		Pages: truncate(normalizePages(data["pages"]), pages),
	}
	return batch, nil
}

// decodeObject strips code fences and decodes a JSON object.
func decodeObject(text string) (map[string]any, bool) {
	var data map[string]any
	if err := json.Unmarshal([]byte(stripFences(text)), &data); err != nil || data == nil {
		return nil, false
	}
	return data, true
}

func normalizePosts(v any, illustrations bool) []PostTitle {
	out := []PostTitle{}
	items, _ := v.([]any)
	for _, item := range items {
		switch t := item.(type) {
		case string:
			if title := strings.TrimSpace(t); title != "" {
				out = append(out, PostTitle{Title: title, Categories: []string{}, Tags: []string{}})
			}
		case map[string]any:
			title, _ := t["title"].(string)
			title = strings.TrimSpace(title)
			if title == "" {
				continue
			}
			entry := PostTitle{
				Title:      title,
				Categories: termNames(t["categories"]),
				Tags:       termNames(t["tags"]),
			}
			if illustrations {
				if desc, ok := t["illustration_description"].(string); ok {
					entry.IllustrationDescription = provider.SanitizeMultiline(desc)
				}
			}
			out = append(out, entry)
		}
	}
	return out
}

func normalizePages(v any) []PageTitle {
	out := []PageTitle{}
	items, _ := v.([]any)
	for _, item := range items {
		var title string
		switch t := item.(type) {
		case string:
			title = t
		case map[string]any:
			title, _ = t["title"].(string)
		}
		if title = strings.TrimSpace(title); title != "" {
			out = append(out, PageTitle{Title: title})
		}
	}
	return out
}

func truncate[T any](items []T, n int) []T {
	if len(items) > n {
		return items[:n]
	}
	return items
}
