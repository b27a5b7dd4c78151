package store

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/gosimple/slug"
)

var (
	ErrNotFound = errors.New("not found")
	// ErrConflict is returned by CreateTerm when the name or slug is taken.
	ErrConflict = errors.New("term already exists")
)

type Taxonomy string

const (
	TaxonomyCategory Taxonomy = "category"
	TaxonomyTag      Taxonomy = "tag"
)

const (
	TypePost = "post"
	TypePage = "page"

	StatusPublish = "publish"

	UncategorizedName = "Uncategorized"
	UncategorizedSlug = "uncategorized"
)

type Post struct {
	ID          int64
	Title       string
	Content     string
	Type        string
	Status      string
	ThumbnailID int64
	CreatedAt   time.Time
}

type Term struct {
	ID          int64
	Taxonomy    Taxonomy
	Name        string
	Slug        string
	Description string
}

type Media struct {
	ID        int64
	PostID    int64
	FileName  string
	MimeType  string
	Key       string
	URL       string
	Width     int
	Height    int
	Size      int64
	CreatedAt time.Time
}

// Store is the content store the generator writes into. Implementations set
// the ID (and CreatedAt where applicable) on the value passed to Create*.
type Store interface {
	CreatePost(ctx context.Context, post *Post) error
	GetPost(ctx context.Context, id int64) (*Post, error)
	// FindTerm matches name exactly (case-sensitive).
	FindTerm(ctx context.Context, taxonomy Taxonomy, name string) (*Term, error)
	FindTermBySlug(ctx context.Context, taxonomy Taxonomy, slug string) (*Term, error)
	CreateTerm(ctx context.Context, term *Term) error
	// AddPostTerms appends; existing assignments are kept.
	AddPostTerms(ctx context.Context, postID int64, taxonomy Taxonomy, termIDs []int64) error
	RemovePostTerms(ctx context.Context, postID int64, taxonomy Taxonomy, termIDs []int64) error
	PostTerms(ctx context.Context, postID int64, taxonomy Taxonomy) ([]int64, error)
	AttachMedia(ctx context.Context, media *Media) error
	SetThumbnail(ctx context.Context, postID, mediaID int64) error
}

const maxSlugAttempts = 20

// Slugify returns the URL slug for a term name, or "term" when the name has
// no sluggable characters.
func Slugify(s string) string {
	if out := slug.Make(s); out != "" {
		return out
	}
	return "term"
}

// FindOrCreateTerm looks the term up by exact name and creates it when
// missing. A taken slug gets a numeric suffix. created reports whether this
// call inserted the row.
func FindOrCreateTerm(ctx context.Context, s Store, term Term) (*Term, bool, error) {
	existing, err := s.FindTerm(ctx, term.Taxonomy, term.Name)
	if err == nil {
		return existing, false, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, false, err
	}

	base := term.Slug
	if base == "" {
		base = Slugify(term.Name)
	}
	for attempt := 1; attempt <= maxSlugAttempts; attempt++ {
		candidate := term
		candidate.Slug = base
		if attempt > 1 {
			candidate.Slug = base + "-" + strconv.Itoa(attempt)
		}

		err := s.CreateTerm(ctx, &candidate)
		if err == nil {
			return &candidate, true, nil
		}
		if !errors.Is(err, ErrConflict) {
			return nil, false, err
		}

		// Lost a race on the name, or the slug belongs to another term.
		if existing, ferr := s.FindTerm(ctx, term.Taxonomy, term.Name); ferr == nil {
			return existing, false, nil
		}
	}
	return nil, false, fmt.Errorf("no free slug for term %q", term.Name)
}

// DefaultCategory returns the "uncategorized" category, or ErrNotFound.
func DefaultCategory(ctx context.Context, s Store) (*Term, error) {
	return s.FindTermBySlug(ctx, TaxonomyCategory, UncategorizedSlug)
}

// EnsureDefaultCategory creates the "Uncategorized" category if missing.
func EnsureDefaultCategory(ctx context.Context, s Store) (*Term, error) {
	if t, err := DefaultCategory(ctx, s); err == nil {
		return t, nil
	}
	t, _, err := FindOrCreateTerm(ctx, s, Term{
		Taxonomy: TaxonomyCategory,
		Name:     UncategorizedName,
		Slug:     UncategorizedSlug,
	})
	return t, err
}
