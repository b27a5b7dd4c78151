// Package prompt builds the texts sent to text and image models. Builders are
// pure; callers may register filters that rewrite a prompt after it is built.
package prompt

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

const (
	defaultTitlesInstructions   = "Invent a plausible site topic and style yourself (blog, business, portfolio, etc.) and keep everything internally consistent."
	defaultItemInstructions     = "Use clear, natural English and make it look like a realistic website."
	defaultTaxonomyInstructions = "Organize posts into logical topic clusters as you see fit."
)

type TitlesInput struct {
	Posts           int
	Pages           int
	Instructions    string
	Illustrations   bool
	SiteName        string
	SiteDescription string
}

type ItemInput struct {
	Title        string
	ContentType  string
	Instructions string
}

type TaxonomyInput struct {
	Titles       []string
	Categories   bool
	Tags         bool
	Instructions string
}

type ImageInput struct {
	ContentType  string
	Title        string
	PostID       int64
	Illustration string
	Instructions string
	Model        string
}

// Filter rewrites a built prompt. The returned text is used verbatim.
type Filter[T any] func(prompt string, in T) string

type Filters struct {
	Titles   []Filter[TitlesInput]
	Item     []Filter[ItemInput]
	Taxonomy []Filter[TaxonomyInput]
	Image    []Filter[ImageInput]
}

type Builder struct {
	filters Filters
}

func NewBuilder(filters Filters) *Builder {
	return &Builder{filters: filters}
}

func apply[T any](prompt string, in T, filters []Filter[T]) string {
	for _, f := range filters {
		prompt = f(prompt, in)
	}
	return prompt
}

func (b *Builder) Titles(in TitlesInput) string {
	return apply(Titles(in), in, b.filters.Titles)
}

func (b *Builder) Item(in ItemInput) string {
	return apply(Item(in), in, b.filters.Item)
}

func (b *Builder) Taxonomy(in TaxonomyInput) string {
	return apply(Taxonomy(in), in, b.filters.Taxonomy)
}

func (b *Builder) Image(in ImageInput) string {
	return apply(Image(in), in, b.filters.Image)
}

// Titles asks for a JSON object with "posts" and "pages" arrays of exactly the
// requested sizes.
func Titles(in TitlesInput) string {
	instructions := in.Instructions
	if strings.TrimSpace(instructions) == "" {
		instructions = defaultTitlesInstructions
	}

	var sb strings.Builder
	sb.WriteString("You are an assistant that generates dummy content structures for a website.\n\n")
	fmt.Fprintf(&sb, "Site name: %s\n", in.SiteName)
	if strings.TrimSpace(in.SiteDescription) != "" {
		fmt.Fprintf(&sb, "Site description: %s\n", in.SiteDescription)
	}
	fmt.Fprintf(&sb, "User instructions: %s\n\n", instructions)
	sb.WriteString("Generate a JSON object with two arrays: \"posts\" and \"pages\".\n")
	fmt.Fprintf(&sb, "- Generate exactly %d post titles and %d page titles.\n", in.Posts, in.Pages)
	if in.Illustrations {
		sb.WriteString("- For posts, include taxonomy and image cues: {\"title\": \"...\", \"categories\": [\"...\"], \"tags\": [\"...\"], \"illustration_description\": \"...\"}.\n")
	} else {
		sb.WriteString("- For posts, include taxonomy cues only: {\"title\": \"...\", \"categories\": [\"...\"], \"tags\": [\"...\"]}.\n")
	}
	sb.WriteString("- For pages, only include the title object: {\"title\": \"...\"}.\n")
	sb.WriteString("- Titles must be unique and coherent within the same site.\n")
	sb.WriteString("- Categories are broad, reusable site topics (aim for 2-6 across all posts). Keep names short and human-friendly.\n")
	sb.WriteString("- Tags are more specific topics per post (aim for 3-7 tags each) and reuse tags where sensible.\n")
	if in.Illustrations {
		sb.WriteString("- \"illustration_description\" is a vivid, single-sentence visual idea for a safe-for-work featured image aligned with the post.\n\n")
	} else {
		sb.WriteString("\n")
	}
	sb.WriteString("Return ONLY valid JSON, without markdown code fences or commentary.")
	return sb.String()
}

// Item asks for the body of one post or page as block-comment delimited
// markup.
func Item(in ItemInput) string {
	instructions := in.Instructions
	if strings.TrimSpace(instructions) == "" {
		instructions = defaultItemInstructions
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "You are generating dummy content for a website %s titled: \"%s\".\n\n", in.ContentType, in.Title)
	fmt.Fprintf(&sb, "User instructions for the overall site: %s\n\n", instructions)

	if in.ContentType == "page" {
		sb.WriteString("Generate content suitable for a page (about, contact, services, etc.).\n")
		sb.WriteString("- Around 4-6 paragraphs with 2-3 headings.\n")
	} else {
		sb.WriteString("Generate content suitable for a blog post.\n")
		sb.WriteString("- At least 10 paragraphs with multiple headings, lists, quotes, and rich structure.\n")
	}

	sb.WriteString("- Format the content as Gutenberg blocks using HTML comment delimiters.\n")
	sb.WriteString("- Each block starts with <!-- wp:blocktype --> and ends with <!-- /wp:blocktype -->.\n")
	sb.WriteString("- Available blocks: wp:paragraph, wp:heading, wp:list, wp:list-item, wp:quote, wp:code, wp:image, wp:separator, wp:buttons, wp:button, wp:columns, wp:column, wp:group, etc.\n")
	sb.WriteString("- For headings, use level 2 or 3: <!-- wp:heading --> or <!-- wp:heading {\"level\":3} -->.\n")
	sb.WriteString("- For lists, wrap each item: <!-- wp:list-item --><li>Item text</li><!-- /wp:list-item -->.\n")
	sb.WriteString("- For quotes, nest a paragraph inside: <!-- wp:quote --><blockquote class=\"wp-block-quote\"><!-- wp:paragraph --><p>Quote text</p><!-- /wp:paragraph --></blockquote><!-- /wp:quote -->.\n")
	sb.WriteString("- Use proper CSS classes like wp-block-heading, wp-block-list, wp-block-quote, wp-block-code, etc.\n")
	sb.WriteString("- Do NOT include <html>, <body>, <head>, or the title as an <h1>.\n")
	sb.WriteString("- Mix different block types naturally (paragraphs, headings, lists, quotes, code blocks where appropriate).\n\n")
	sb.WriteString("Example format:\n")
	sb.WriteString("<!-- wp:heading -->\n<h2 class=\"wp-block-heading\">Section Title</h2>\n<!-- /wp:heading -->\n\n")
	sb.WriteString("<!-- wp:paragraph -->\n<p>This is a paragraph with <strong>bold text</strong> and <em>italic text</em>.</p>\n<!-- /wp:paragraph -->\n\n")
	sb.WriteString("<!-- wp:list -->\n<ul class=\"wp-block-list\"><!-- wp:list-item -->\n<li>First item</li>\n<!-- /wp:list-item -->\n\n<!-- wp:list-item -->\n<li>Second item</li>\n<!-- /wp:list-item --></ul>\n<!-- /wp:list -->\n\n")
	sb.WriteString("Return ONLY the Gutenberg block markup, without JSON wrappers, markdown code fences, or explanations.")
	return sb.String()
}

// Taxonomy embeds the titles as a JSON array and asks for the requested
// sections only.
func Taxonomy(in TaxonomyInput) string {
	instructions := in.Instructions
	if strings.TrimSpace(instructions) == "" {
		instructions = defaultTaxonomyInstructions
	}

	var sb strings.Builder
	sb.WriteString("You are designing categories and tags for a blog.\n\n")
	fmt.Fprintf(&sb, "User instructions: %s\n\n", instructions)
	fmt.Fprintf(&sb, "Here is the list of post titles as a JSON array:\n%s\n\n", titlesJSON(in.Titles))
	sb.WriteString("Create a coherent taxonomy for these posts.\n")
	if in.Categories {
		sb.WriteString("- Choose a sensible number of categories (usually 2-6) and group posts accordingly.\n")
	}
	if in.Tags {
		sb.WriteString("- Choose a sensible number of tags (roughly 5-15) for detailed topics.\n")
	}
	sb.WriteString("- Use broad topics for categories and more specific concepts for tags.\n\n")

	sb.WriteString("Return a JSON object containing only the sections you generate (categories and/or tags). Example shape:\n{\n")
	if in.Categories {
		sb.WriteString("  \"categories\": [\n")
		sb.WriteString("    {\"name\": \"...\", \"slug\": \"...\", \"description\": \"...\", \"posts\": [\"Post title 1\", \"Post title 2\"]}\n")
		sb.WriteString("  ]")
		if in.Tags {
			sb.WriteString(",\n")
		} else {
			sb.WriteString("\n")
		}
	}
	if in.Tags {
		sb.WriteString("  \"tags\": [\n")
		sb.WriteString("    {\"name\": \"...\", \"slug\": \"...\", \"description\": \"\", \"posts\": [\"Post title 1\"]}\n")
		sb.WriteString("  ]\n")
	}
	sb.WriteString("}\n\n")
	sb.WriteString("Rules:\n")
	sb.WriteString("- Every title can belong to multiple tags, but usually 1-3 categories total across all posts.\n")
	sb.WriteString("- Use URL-friendly slugs (lowercase, hyphens, no special characters).\n")
	sb.WriteString("- Descriptions are short (1-2 sentences) and optional.\n\n")
	sb.WriteString("Return ONLY valid JSON without markdown code fences or commentary.")
	return sb.String()
}

// Image composes the featured-image prompt. The illustration and the site
// instructions are appended in that order when present.
func Image(in ImageInput) string {
	p := fmt.Sprintf("Featured image for a %s titled \"%s\".", in.ContentType, in.Title)
	if in.Illustration != "" {
		p += " Visual direction: " + in.Illustration
	}
	if in.Instructions != "" {
		p += " Site context: " + in.Instructions
	}
	return p
}

func titlesJSON(titles []string) string {
	list := make([]string, 0, len(titles))
	for _, t := range titles {
		if t != "" {
			list = append(list, t)
		}
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(list); err != nil {
		return "[]"
	}
	return strings.TrimSpace(buf.String())
}
