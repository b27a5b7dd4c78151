package generator

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"

	"github.com/vnmchuo/contentgen/internal/prompt"
	"github.com/vnmchuo/contentgen/internal/provider"
	"github.com/vnmchuo/contentgen/internal/store"
)

type TaxonomyItem struct {
	PostID int64  `json:"post_id"`
	Title  string `json:"title"`
}

type TaxonomyRequest struct {
	Items        []TaxonomyItem
	Categories   bool
	Tags         bool
	Instructions string
	Model        string
}

type Assignment struct {
	PostID int64  `json:"post_id"`
	TermID int64  `json:"term_id"`
	Type   string `json:"type"`
}

type TaxonomySummary struct {
	CategoriesCreated int          `json:"categories_created"`
	TagsCreated       int          `json:"tags_created"`
	Assignments       []Assignment `json:"assignments"`
}

// Taxonomies asks the text model to group existing items into categories
// and/or tags, creates missing terms and assigns them. Proposed members whose
// title matches no item are skipped.
func (g *Generator) Taxonomies(ctx context.Context, req TaxonomyRequest) (*TaxonomySummary, error) {
	ctx, span := g.tracer.Start(ctx, "generator.taxonomies")
	defer span.End()

	if !req.Categories && !req.Tags {
		return nil, validationError("no_taxonomies_requested", "No categories or tags requested.")
	}
	if len(req.Items) == 0 {
		return nil, validationError("no_items", "No posts were provided for taxonomy generation.")
	}

	model, err := textModel(req.Model)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(
		attribute.String("model", model),
		attribute.Int("items", len(req.Items)),
	)

	p, err := g.registry.Text(model)
	if err != nil {
		return nil, err
	}

	titles := make([]string, 0, len(req.Items))
	for _, item := range req.Items {
		titles = append(titles, item.Title)
	}
	text := g.prompts.Taxonomy(prompt.TaxonomyInput{
		Titles:       titles,
		Categories:   req.Categories,
		Tags:         req.Tags,
		Instructions: req.Instructions,
	})
	resp, err := g.call(ctx, "taxonomies", p, &provider.Request{Model: model, Prompt: text})
	if err != nil {
		return nil, err
	}

	data, ok := decodeObject(resp.Text)
	if !ok {
		return nil, &Error{
			Kind:    ErrInvalidJSON,
			Code:    "invalid_tax_json",
			Message: "The AI returned an invalid JSON structure for taxonomies.",
		}
	}

	// One title may belong to several items.
	byTitle := make(map[string][]int64)
	for _, item := range req.Items {
		if item.Title == "" || item.PostID == 0 {
			continue
		}
		byTitle[item.Title] = append(byTitle[item.Title], item.PostID)
	}

	summary := &TaxonomySummary{Assignments: []Assignment{}}
	if req.Categories {
		created, err := g.applyPlan(ctx, store.TaxonomyCategory, data["categories"], byTitle, summary)
		if err != nil {
			return nil, err
		}
		summary.CategoriesCreated = created
	}
	if req.Tags {
		created, err := g.applyPlan(ctx, store.TaxonomyTag, data["tags"], byTitle, summary)
		if err != nil {
			return nil, err
		}
		summary.TagsCreated = created
	}
	return summary, nil
}

func (g *Generator) applyPlan(ctx context.Context, taxonomy store.Taxonomy, v any, byTitle map[string][]int64, summary *TaxonomySummary) (int, error) {
	entries, _ := v.([]any)
	created := 0
	for _, e := range entries {
		entry, ok := e.(map[string]any)
		if !ok {
			continue
		}
		name, _ := entry["name"].(string)
		name = provider.SanitizeText(name)
		if name == "" {
			continue
		}

		term := store.Term{Taxonomy: taxonomy, Name: name}
		if s, ok := entry["slug"].(string); ok && s != "" {
			term.Slug = store.Slugify(s)
		}
		if d, ok := entry["description"].(string); ok {
			term.Description = provider.SanitizeMultiline(d)
		}

		t, isNew, err := store.FindOrCreateTerm(ctx, g.store, term)
		if err != nil {
			return created, persistenceError("term_create_failed", fmt.Sprintf("create %s %q", taxonomy, name), err)
		}
		if isNew {
			created++
		}

		members, _ := entry["posts"].([]any)
		for _, m := range members {
			title, ok := m.(string)
			if !ok {
				continue
			}
			for _, postID := range byTitle[title] {
				if err := g.store.AddPostTerms(ctx, postID, taxonomy, []int64{t.ID}); err != nil {
					return created, persistenceError("term_assign_failed", fmt.Sprintf("assign %s %q", taxonomy, name), err)
				}
				summary.Assignments = append(summary.Assignments, Assignment{
					PostID: postID,
					TermID: t.ID,
					Type:   string(taxonomy),
				})
			}
		}
	}
	return created, nil
}
