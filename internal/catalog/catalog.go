// Package catalog lists the text and image models offered to callers and the
// defaults used when a request names none.
package catalog

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/vnmchuo/contentgen/internal/provider"
)

type Model struct {
	ID     string          `yaml:"id" json:"id"`
	Label  string          `yaml:"label" json:"label"`
	Vendor provider.Vendor `yaml:"vendor" json:"vendor"`
}

type Catalog struct {
	Text         []Model `yaml:"text" json:"text"`
	Image        []Model `yaml:"image" json:"image"`
	DefaultText  string  `yaml:"default_text" json:"default_text"`
	DefaultImage string  `yaml:"default_image" json:"default_image"`
}

func Default() *Catalog {
	return &Catalog{
		Text: []Model{
			{ID: "gemini-3-pro-preview", Label: "Gemini 3 Pro Preview", Vendor: provider.VendorGemini},
			{ID: "gemini-2.5-pro", Label: "Gemini 2.5 Pro", Vendor: provider.VendorGemini},
			{ID: "gemini-2.5-flash", Label: "Gemini 2.5 Flash", Vendor: provider.VendorGemini},
			{ID: "gemini-2.5-flash-lite", Label: "Gemini 2.5 Flash Lite", Vendor: provider.VendorGemini},
			{ID: "gpt-5.1", Label: "GPT-5.1", Vendor: provider.VendorOpenAI},
			{ID: "gpt-5", Label: "GPT-5", Vendor: provider.VendorOpenAI},
			{ID: "gpt-5-mini", Label: "GPT-5 mini", Vendor: provider.VendorOpenAI},
			{ID: "gpt-5-nano", Label: "GPT-5 nano", Vendor: provider.VendorOpenAI},
			{ID: "gpt-5-chat-latest", Label: "ChatGPT-5-latest", Vendor: provider.VendorOpenAI},
			{ID: "gpt-4.1", Label: "GPT-4.1", Vendor: provider.VendorOpenAI},
			{ID: "gpt-4.1-mini", Label: "GPT-4.1 mini", Vendor: provider.VendorOpenAI},
			{ID: "gpt-4.1-nano", Label: "GPT-4.1 nano", Vendor: provider.VendorOpenAI},
			{ID: "gpt-4o", Label: "GPT-4o", Vendor: provider.VendorOpenAI},
			{ID: "gpt-4o-mini", Label: "GPT-4o mini", Vendor: provider.VendorOpenAI},
			{ID: "chatgpt-4o-latest", Label: "ChatGPT-4o-latest", Vendor: provider.VendorOpenAI},
		},
		Image: []Model{
			{ID: "google/nano-banana-pro", Label: "Gemini 3 Pro Image (Nano-Banana Pro)", Vendor: provider.VendorReplicate},
			{ID: "google/gemini-2.5-flash-image", Label: "Gemini 2.5 Flash Image (Nano-Banana)", Vendor: provider.VendorReplicate},
			{ID: "google/imagen-4", Label: "Imagen 4", Vendor: provider.VendorReplicate},
			{ID: "google/imagen-4-ultra", Label: "Imagen 4 Ultra", Vendor: provider.VendorReplicate},
			{ID: "google/imagen-4-fast", Label: "Imagen 4 Fast", Vendor: provider.VendorReplicate},
			{ID: "black-forest-labs/flux-1.1-pro", Label: "Flux 1.1 Pro", Vendor: provider.VendorReplicate},
			{ID: "black-forest-labs/flux-dev", Label: "Flux Dev", Vendor: provider.VendorReplicate},
			{ID: "black-forest-labs/flux-schnell", Label: "Flux Schnell", Vendor: provider.VendorReplicate},
			{ID: "recraft-ai/recraft-v3", Label: "Recraft v3", Vendor: provider.VendorReplicate},
			{ID: "ideogram-ai/ideogram-v3-turbo", Label: "Ideogram v3 Turbo", Vendor: provider.VendorReplicate},
			{ID: "bytedance/seedream-4.5", Label: "Seedream 4.5", Vendor: provider.VendorReplicate},
		},
		DefaultText:  "gpt-4o-mini",
		DefaultImage: "black-forest-labs/flux-dev",
	}
}

// Load returns the built-in catalog extended with the models in the YAML file
// at path. Entries whose id is already present replace the built-in label.
// An empty path returns Default().
func Load(path string) (*Catalog, error) {
	c := Default()
	if path == "" {
		return c, nil
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read model catalog: %w", err)
	}
	var extra Catalog
	if err := yaml.Unmarshal(raw, &extra); err != nil {
		return nil, fmt.Errorf("failed to parse model catalog %s: %w", path, err)
	}

	c.Text = merge(c.Text, extra.Text, "")
	c.Image = merge(c.Image, extra.Image, provider.VendorReplicate)
	if extra.DefaultText != "" {
		c.DefaultText = extra.DefaultText
	}
	if extra.DefaultImage != "" {
		c.DefaultImage = extra.DefaultImage
	}
	return c, nil
}

func merge(base, extra []Model, vendor provider.Vendor) []Model {
	index := make(map[string]int, len(base))
	for i, m := range base {
		index[m.ID] = i
	}
	for _, m := range extra {
		if m.ID == "" {
			continue
		}
		if m.Vendor == "" {
			m.Vendor = vendor
		}
		if m.Label == "" {
			m.Label = m.ID
		}
		if i, ok := index[m.ID]; ok {
			base[i] = m
			continue
		}
		index[m.ID] = len(base)
		base = append(base, m)
	}
	return base
}

func (c *Catalog) HasText(id string) bool {
	return contains(c.Text, id)
}

func (c *Catalog) HasImage(id string) bool {
	return contains(c.Image, id)
}

func contains(models []Model, id string) bool {
	for _, m := range models {
		if m.ID == id {
			return true
		}
	}
	return false
}
