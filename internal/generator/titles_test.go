package generator

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"

	"github.com/vnmchuo/contentgen/internal/provider"
	"github.com/vnmchuo/contentgen/internal/store"
)

func TestTitles_Normalization(t *testing.T) {
	f := newFixture(t, testSettings())
	f.openai.respond = textReply(`{"posts": ["Foo", {"title":"Bar","categories":["X","X","y"]}, {"categories":["Z"]}], "pages": []}`)

	batch, err := f.gen.Titles(context.Background(), TitlesRequest{Posts: 3, Model: "gpt-4o-mini", GenerateImages: true})
	if err != nil {
		t.Fatalf("Titles failed: %v", err)
	}
	if len(batch.Posts) != 2 {
		t.Fatalf("Expected 2 posts, got %d: %+v", len(batch.Posts), batch.Posts)
	}
	if batch.Posts[0].Title != "Foo" || len(batch.Posts[0].Categories) != 0 {
		t.Errorf("Unexpected first entry %+v", batch.Posts[0])
	}
	if batch.Posts[1].Title != "Bar" || !reflect.DeepEqual(batch.Posts[1].Categories, []string{"X", "y"}) {
		t.Errorf("Unexpected second entry %+v", batch.Posts[1])
	}
	if batch.Pages == nil || len(batch.Pages) != 0 {
		t.Errorf("Expected empty non-nil pages, got %#v", batch.Pages)
	}
}

func TestTitles_TruncatesToRequestedCount(t *testing.T) {
	f := newFixture(t, testSettings())
	f.openai.respond = textReply("```json\n" + `{"posts":[{"title":"1"},{"title":"2"},{"title":"3"},{"title":"4"},{"title":"5"}],"pages":[{"title":"About"},"Contact"]}` + "\n```")

	batch, err := f.gen.Titles(context.Background(), TitlesRequest{Posts: 3, Pages: 1, Model: "gpt-4o"})
	if err != nil {
		t.Fatalf("Titles failed: %v", err)
	}
	var got []string
	for _, p := range batch.Posts {
		got = append(got, p.Title)
	}
	if !reflect.DeepEqual(got, []string{"1", "2", "3"}) {
		t.Errorf("Expected first three posts in order, got %v", got)
	}
	if len(batch.Pages) != 1 || batch.Pages[0].Title != "About" {
		t.Errorf("Expected one page, got %+v", batch.Pages)
	}
}

func TestTitles_IllustrationsOnlyWhenRequested(t *testing.T) {
	f := newFixture(t, testSettings())
	f.openai.respond = textReply(`{"posts":[{"title":"A","tags":["t"," t ",""],"illustration_description":"A <b>red</b> fox."}]}`)

	with, _ := f.gen.Titles(context.Background(), TitlesRequest{Posts: 1, GenerateImages: true, Model: "gpt-4o-mini"})
	if with.Posts[0].IllustrationDescription != "A red fox." {
		t.Errorf("Expected sanitized illustration, got %q", with.Posts[0].IllustrationDescription)
	}
	if !reflect.DeepEqual(with.Posts[0].Tags, []string{"t"}) {
		t.Errorf("Expected tags [t], got %v", with.Posts[0].Tags)
	}

	without, _ := f.gen.Titles(context.Background(), TitlesRequest{Posts: 1, Model: "gpt-4o-mini"})
	if without.Posts[0].IllustrationDescription != "" {
		t.Errorf("Expected no illustration, got %q", without.Posts[0].IllustrationDescription)
	}
}

func TestTitles_Prompt(t *testing.T) {
	f := newFixture(t, testSettings())
	f.openai.respond = textReply(`{"posts":[],"pages":[]}`)

	if _, err := f.gen.Titles(context.Background(), TitlesRequest{Posts: 2, Pages: 1, Model: " gpt-4o-mini "}); err != nil {
		t.Fatalf("Titles failed: %v", err)
	}
	calls := f.openai.Calls()
	if len(calls) != 1 {
		t.Fatalf("Expected 1 call, got %d", len(calls))
	}
	if calls[0].Model != "gpt-4o-mini" {
		t.Errorf("Expected gpt-4o-mini, got %q", calls[0].Model)
	}
	if !strings.Contains(calls[0].Prompt, "Site name: Test Site") || !strings.Contains(calls[0].Prompt, "exactly 2 post titles and 1 page titles") {
		t.Errorf("Unexpected prompt:\n%s", calls[0].Prompt)
	}
}

func TestOperations_RequireModel(t *testing.T) {
	f := newFixture(t, testSettings())
	f.openai.respond = textReply(`{"posts":["A"],"pages":[]}`)
	ctx := context.Background()

	errs := map[string]error{}
	_, errs["titles"] = f.gen.Titles(ctx, TitlesRequest{Posts: 1})
	_, errs["item"] = f.gen.Item(ctx, ItemRequest{Title: "A", PostType: store.TypePost, Model: "  "})
	_, errs["taxonomies"] = f.gen.Taxonomies(ctx, TaxonomyRequest{Items: []TaxonomyItem{{PostID: 1, Title: "A"}}, Tags: true})

	for op, err := range errs {
		var gerr *Error
		if !errors.As(err, &gerr) || gerr.Code != "missing_model" || gerr.Kind != ErrValidation {
			t.Errorf("%s: expected missing_model, got %v", op, err)
		}
	}
	if len(f.openai.Calls()) != 0 {
		t.Error("A request without a model must not reach the provider")
	}
}

func TestTitles_Errors(t *testing.T) {
	f := newFixture(t, testSettings())

	_, err := f.gen.Titles(context.Background(), TitlesRequest{Posts: 0, Pages: -2, Model: "gpt-4o-mini"})
	var gerr *Error
	if !errors.As(err, &gerr) || gerr.Code != "invalid_counts" {
		t.Errorf("Expected invalid_counts, got %v", err)
	}
	if len(f.openai.Calls()) != 0 {
		t.Error("Validation failure must not reach the provider")
	}

	f.openai.respond = textReply("Sure! Here are your titles.")
	_, err = f.gen.Titles(context.Background(), TitlesRequest{Posts: 1, Model: "gpt-4o-mini"})
	if KindOf(err) != ErrInvalidJSON {
		t.Errorf("Expected invalid JSON kind, got %v", err)
	}

	f.openai.respond = textReply(`["not","an","object"]`)
	_, err = f.gen.Titles(context.Background(), TitlesRequest{Posts: 1, Model: "gpt-4o-mini"})
	if KindOf(err) != ErrInvalidJSON {
		t.Errorf("Expected invalid JSON kind for arrays, got %v", err)
	}

	vendorErr := &provider.Error{Kind: provider.ErrVendorRejected, Status: 429, Message: "OpenAI API error (429): slow down"}
	f.openai.respond = failWith(vendorErr)
	_, err = f.gen.Titles(context.Background(), TitlesRequest{Posts: 1, Model: "gpt-4o-mini"})
	if err != vendorErr {
		t.Errorf("Expected provider error verbatim, got %v", err)
	}
}

func TestStripFences(t *testing.T) {
	cases := map[string]string{
		"```json\n{}\n```": "{}\n",
		"```{}```":         "{}",
		"  {\"a\":1}  ":    "{\"a\":1}",
	}
	for in, want := range cases {
		if got := stripFences(in); got != want {
			t.Errorf("stripFences(%q) = %q, want %q", in, got, want)
		}
	}
}
