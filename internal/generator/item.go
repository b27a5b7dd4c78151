package generator

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel/attribute"

	"github.com/vnmchuo/contentgen/internal/media"
	"github.com/vnmchuo/contentgen/internal/prompt"
	"github.com/vnmchuo/contentgen/internal/provider"
	"github.com/vnmchuo/contentgen/internal/store"
)

type ItemRequest struct {
	Title                   string
	PostType                string
	Instructions            string
	Model                   string
	GenerateImage           bool
	ImageModel              string
	Categories              []string
	Tags                    []string
	IllustrationDescription string
}

type ItemResult struct {
	PostID       int64    `json:"post_id"`
	Title        string   `json:"title"`
	PostType     string   `json:"post_type"`
	AttachmentID int64    `json:"attachment_id"`
	ImageURL     string   `json:"image_url,omitempty"`
	Categories   []string `json:"categories"`
	Tags         []string `json:"tags"`
	ImageError   string   `json:"image_error,omitempty"`
}

// Item generates the body of one post or page, stores it, applies the
// requested terms and, when asked, attaches a featured image. Image failures
// are reported in ImageError and never fail the item.
func (g *Generator) Item(ctx context.Context, req ItemRequest) (*ItemResult, error) {
	ctx, span := g.tracer.Start(ctx, "generator.item")
	defer span.End()

	title := provider.SanitizeText(req.Title)
	if title == "" {
		return nil, validationError("missing_title", "Title is required.")
	}
	if req.PostType != store.TypePost && req.PostType != store.TypePage {
		return nil, validationError("invalid_post_type", "Only posts and pages are supported.")
	}

	categories := cleanNames(req.Categories)
	tags := cleanNames(req.Tags)
	illustration := provider.SanitizeMultiline(req.IllustrationDescription)

	model, err := textModel(req.Model)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(
		attribute.String("model", model),
		attribute.String("post_type", req.PostType),
	)

	p, err := g.registry.Text(model)
	if err != nil {
		return nil, err
	}

	text := g.prompts.Item(prompt.ItemInput{
		Title:        title,
		ContentType:  req.PostType,
		Instructions: req.Instructions,
	})
	resp, err := g.call(ctx, "item", p, &provider.Request{Model: model, Prompt: text})
	if err != nil {
		return nil, err
	}

	post := &store.Post{
		Title:   title,
		Content: g.markup.Sanitize(strings.TrimSpace(resp.Text)),
		Type:    req.PostType,
		Status:  store.StatusPublish,
	}
	if err := g.store.CreatePost(ctx, post); err != nil {
		return nil, persistenceError("post_create_failed", "create the "+req.PostType, err)
	}

	result := &ItemResult{
		PostID:     post.ID,
		Title:      title,
		PostType:   req.PostType,
		Categories: categories,
		Tags:       tags,
	}

	if req.PostType == store.TypePost {
		if err := g.assignTerms(ctx, post.ID, categories, tags); err != nil {
			return nil, err
		}
	}

	if req.GenerateImage {
		img := imageJob{
			post:         post,
			model:        req.ImageModel,
			illustration: illustration,
			instructions: req.Instructions,
		}
		if err := g.attachImage(ctx, img, result); err != nil {
			result.ImageError = err.Error()
			g.logger.Warn("featured image skipped", "post_id", post.ID, "error", err.Error())
		}
	}

	return result, nil
}

// assignTerms gives a new post the default category, then the requested
// categories and tags. The default category is dropped once another one is
// assigned.
func (g *Generator) assignTerms(ctx context.Context, postID int64, categories, tags []string) error {
	uncategorized, err := store.DefaultCategory(ctx, g.store)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return persistenceError("term_lookup_failed", "look up the default category", err)
	}
	if uncategorized != nil {
		if err := g.store.AddPostTerms(ctx, postID, store.TaxonomyCategory, []int64{uncategorized.ID}); err != nil {
			return persistenceError("term_assign_failed", "assign the default category", err)
		}
	}

	added := 0
	for _, name := range categories {
		term, _, err := store.FindOrCreateTerm(ctx, g.store, store.Term{Taxonomy: store.TaxonomyCategory, Name: name})
		if err != nil {
			return persistenceError("term_create_failed", fmt.Sprintf("create category %q", name), err)
		}
		if err := g.store.AddPostTerms(ctx, postID, store.TaxonomyCategory, []int64{term.ID}); err != nil {
			return persistenceError("term_assign_failed", fmt.Sprintf("assign category %q", name), err)
		}
		if uncategorized == nil || term.ID != uncategorized.ID {
			added++
		}
	}
	if added > 0 && uncategorized != nil {
		if err := g.store.RemovePostTerms(ctx, postID, store.TaxonomyCategory, []int64{uncategorized.ID}); err != nil {
			return persistenceError("term_assign_failed", "remove the default category", err)
		}
	}

	for _, name := range tags {
		term, _, err := store.FindOrCreateTerm(ctx, g.store, store.Term{Taxonomy: store.TaxonomyTag, Name: name})
		if err != nil {
			return persistenceError("term_create_failed", fmt.Sprintf("create tag %q", name), err)
		}
		if err := g.store.AddPostTerms(ctx, postID, store.TaxonomyTag, []int64{term.ID}); err != nil {
			return persistenceError("term_assign_failed", fmt.Sprintf("assign tag %q", name), err)
		}
	}
	return nil
}

type imageJob struct {
	post         *store.Post
	model        string
	illustration string
	instructions string
}

func (g *Generator) attachImage(ctx context.Context, job imageJob, result *ItemResult) error {
	p, err := g.registry.Image()
	if err != nil {
		return err
	}
	model := job.model
	if model == "" {
		model = g.settings.DefaultImageModel
	}
	if model == "" {
		return &Error{Kind: ErrMissingModelConfig, Code: "missing_image_model", Message: "Image model is not configured."}
	}
	if g.media == nil {
		return &Error{Kind: ErrMissingModelConfig, Code: "missing_media_storage", Message: "Media storage is not configured."}
	}

	text := g.prompts.Image(prompt.ImageInput{
		ContentType:  job.post.Type,
		Title:        job.post.Title,
		PostID:       job.post.ID,
		Illustration: job.illustration,
		Instructions: job.instructions,
		Model:        model,
	})
	resp, err := g.call(ctx, "image", p, &provider.Request{Model: model, Prompt: text})
	if err != nil {
		return err
	}
	if len(resp.Image) == 0 {
		return &provider.Error{Kind: provider.ErrEmptyOutput, Vendor: p.Vendor(), Message: "Replicate API returned no output."}
	}

	now := g.now()
	info := media.Inspect(resp.Image)
	name := media.FileName(job.post.Type, job.post.ID, info.Ext, now)
	obj, err := g.media.Put(ctx, media.Key(name, now), resp.Image, info.MimeType)
	if err != nil {
		return persistenceError("image_store_failed", "store the generated image", err)
	}

	attachment := &store.Media{
		PostID:   job.post.ID,
		FileName: name,
		MimeType: info.MimeType,
		Key:      obj.Key,
		URL:      obj.URL,
		Width:    info.Width,
		Height:   info.Height,
		Size:     obj.Size,
	}
	if err := g.store.AttachMedia(ctx, attachment); err != nil {
		return persistenceError("attachment_create_failed", "save the image attachment", err)
	}
	if err := g.store.SetThumbnail(ctx, job.post.ID, attachment.ID); err != nil {
		return persistenceError("thumbnail_failed", "set the featured image", err)
	}

	result.AttachmentID = attachment.ID
	result.ImageURL = attachment.URL
	return nil
}
