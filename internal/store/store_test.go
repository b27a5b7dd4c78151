package store

import (
	"context"
	"errors"
	"slices"
	"testing"
)

func backends(t *testing.T) map[string]Store {
	t.Helper()
	sqlite, err := OpenSQLite(context.Background(), ":memory:")
	if err != nil {
		t.Fatalf("OpenSQLite failed: %v", err)
	}
	t.Cleanup(func() { sqlite.Close() })

	return map[string]Store{
		"memory": NewMemoryStore(),
		"sqlite": sqlite,
	}
}

func TestStore_Contract(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			post := &Post{Title: "Hello", Content: "<p>x</p>", Type: TypePost, Status: StatusPublish}
			if err := s.CreatePost(ctx, post); err != nil {
				t.Fatalf("CreatePost failed: %v", err)
			}
			if post.ID == 0 {
				t.Fatal("Expected post id to be set")
			}

			got, err := s.GetPost(ctx, post.ID)
			if err != nil {
				t.Fatalf("GetPost failed: %v", err)
			}
			if got.Title != "Hello" || got.Type != TypePost {
				t.Errorf("Unexpected post %+v", got)
			}
			if _, err := s.GetPost(ctx, post.ID+1000); !errors.Is(err, ErrNotFound) {
				t.Errorf("Expected ErrNotFound, got %v", err)
			}

			if _, err := s.FindTerm(ctx, TaxonomyCategory, "News"); !errors.Is(err, ErrNotFound) {
				t.Errorf("Expected ErrNotFound, got %v", err)
			}

			news := &Term{Taxonomy: TaxonomyCategory, Name: "News", Slug: "news"}
			if err := s.CreateTerm(ctx, news); err != nil {
				t.Fatalf("CreateTerm failed: %v", err)
			}
			dup := &Term{Taxonomy: TaxonomyCategory, Name: "news", Slug: "news"}
			if err := s.CreateTerm(ctx, dup); !errors.Is(err, ErrConflict) {
				t.Errorf("Expected ErrConflict on slug reuse, got %v", err)
			}
			tag := &Term{Taxonomy: TaxonomyTag, Name: "News", Slug: "news"}
			if err := s.CreateTerm(ctx, tag); err != nil {
				t.Errorf("Same name in another taxonomy should be allowed, got %v", err)
			}

			if _, err := s.FindTerm(ctx, TaxonomyCategory, "news"); !errors.Is(err, ErrNotFound) {
				t.Error("FindTerm must be case-sensitive")
			}

			if err := s.AddPostTerms(ctx, post.ID, TaxonomyCategory, []int64{news.ID}); err != nil {
				t.Fatalf("AddPostTerms failed: %v", err)
			}
			if err := s.AddPostTerms(ctx, post.ID, TaxonomyCategory, []int64{news.ID}); err != nil {
				t.Fatalf("AddPostTerms should tolerate repeats: %v", err)
			}
			ids, _ := s.PostTerms(ctx, post.ID, TaxonomyCategory)
			if !slices.Equal(ids, []int64{news.ID}) {
				t.Errorf("Expected [%d], got %v", news.ID, ids)
			}

			if err := s.RemovePostTerms(ctx, post.ID, TaxonomyCategory, []int64{news.ID}); err != nil {
				t.Fatalf("RemovePostTerms failed: %v", err)
			}
			ids, _ = s.PostTerms(ctx, post.ID, TaxonomyCategory)
			if len(ids) != 0 {
				t.Errorf("Expected no terms, got %v", ids)
			}

			m := &Media{PostID: post.ID, FileName: "a.png", MimeType: "image/png", Key: "a.png", URL: "/media/a.png", Width: 2, Height: 3, Size: 10}
			if err := s.AttachMedia(ctx, m); err != nil {
				t.Fatalf("AttachMedia failed: %v", err)
			}
			if err := s.SetThumbnail(ctx, post.ID, m.ID); err != nil {
				t.Fatalf("SetThumbnail failed: %v", err)
			}
			got, _ = s.GetPost(ctx, post.ID)
			if got.ThumbnailID != m.ID {
				t.Errorf("Expected thumbnail %d, got %d", m.ID, got.ThumbnailID)
			}
		})
	}
}

func TestFindOrCreateTerm(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			first, created, err := FindOrCreateTerm(ctx, s, Term{Taxonomy: TaxonomyTag, Name: "Go Lang"})
			if err != nil || !created {
				t.Fatalf("Expected creation, got created=%v err=%v", created, err)
			}
			if first.Slug != "go-lang" {
				t.Errorf("Expected slug go-lang, got %s", first.Slug)
			}

			again, created, err := FindOrCreateTerm(ctx, s, Term{Taxonomy: TaxonomyTag, Name: "Go Lang"})
			if err != nil || created {
				t.Fatalf("Expected existing term, got created=%v err=%v", created, err)
			}
			if again.ID != first.ID {
				t.Errorf("Expected id %d, got %d", first.ID, again.ID)
			}

			// Different name, same slug.
			other, created, err := FindOrCreateTerm(ctx, s, Term{Taxonomy: TaxonomyTag, Name: "go lang"})
			if err != nil || !created {
				t.Fatalf("Expected creation with suffixed slug, got created=%v err=%v", created, err)
			}
			if other.Slug != "go-lang-2" {
				t.Errorf("Expected slug go-lang-2, got %s", other.Slug)
			}
		})
	}
}

func TestEnsureDefaultCategory(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	if _, err := DefaultCategory(ctx, s); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Expected no default category yet, got %v", err)
	}
	a, err := EnsureDefaultCategory(ctx, s)
	if err != nil {
		t.Fatalf("EnsureDefaultCategory failed: %v", err)
	}
	b, _ := EnsureDefaultCategory(ctx, s)
	if a.ID != b.ID || a.Slug != UncategorizedSlug {
		t.Errorf("Expected a single uncategorized term, got %+v and %+v", a, b)
	}
}

func TestSlugify(t *testing.T) {
	if got := Slugify("Hello, World!"); got != "hello-world" {
		t.Errorf("Expected hello-world, got %s", got)
	}
	if got := Slugify("!!!"); got != "term" {
		t.Errorf("Expected fallback slug, got %s", got)
	}
}
