// Package render produces the HTML page, standalone results pages and the
// terminal text form of generated recipes.
package render

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/renameio/v2"

	"github.com/nupi-ai/fridgechef/internal/ingredients"
	"github.com/nupi-ai/fridgechef/internal/recipeapi"
	"github.com/nupi-ai/fridgechef/internal/session"
	"github.com/nupi-ai/fridgechef/internal/speech"
	"github.com/nupi-ai/fridgechef/internal/video"
)

const (
	// DefaultTitle heads every page.
	DefaultTitle = "冰箱大廚"
	// DefaultChefTip replaces a missing chef tip.
	DefaultChefTip = "享受您的料理吧！"
	// NotAvailable replaces missing meta values.
	NotAvailable = "N/A"
)

//go:embed templates/*.html
var templateFS embed.FS

// Slot is one photo picker on the upload step.
type Slot struct {
	Index  int
	Name   string
	Filled bool
}

// Number is the 1-based slot label.
func (s Slot) Number() int { return s.Index + 1 }

// Card is a recipe prepared for display.
type Card struct {
	Index       int
	Title       string
	Description string
	ImageURL    string
	EmbedURL    string
	PrepTime    string
	CookTime    string
	Servings    string
	Calories    string
	Nutrition   string
	Ingredients []string
	Seasonings  []string
	Steps       []string
	ChefTip     string
	Interactive bool // render speak/play controls
}

// Page is everything the main page shows.
type Page struct {
	Title   string
	Step    string
	Slots   []Slot
	Items   []ingredients.Item
	Extras  string
	Recipes []recipeapi.Recipe
	Flash   string
	Speech  speech.State
}

// PageFrom snapshots a controller.
func PageFrom(c *session.Controller) Page {
	p := Page{
		Step:    c.Step().String(),
		Items:   c.Checklist().Items(),
		Extras:  c.Extras(),
		Recipes: c.Recipes(),
	}
	for i, img := range c.Slots() {
		p.Slots = append(p.Slots, Slot{Index: i, Name: img.Name, Filled: len(img.Data) > 0})
	}
	return p
}

type pageData struct {
	Page
	Cards        []Card
	Speaking     bool
	SpeakingStep int
}

type resultsData struct {
	Title       string
	Ingredients []string
	Cards       []Card
	Generator   string
}

// Renderer renders recipes with video links normalized to embed URLs.
type Renderer struct {
	tmpl      *template.Template
	videos    *video.Normalizer
	generator string
}

// New parses the embedded templates. generator is shown in the footer of
// standalone results pages.
func New(videos *video.Normalizer, generator string) (*Renderer, error) {
	if videos == nil {
		videos = video.NewNormalizer(nil)
	}
	tmpl, err := template.New("fridgechef").Funcs(template.FuncMap{
		"join": strings.Join,
	}).ParseFS(templateFS, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("render: parse templates: %w", err)
	}
	return &Renderer{tmpl: tmpl, videos: videos, generator: generator}, nil
}

// Cards prepares recipes for display.
func (r *Renderer) Cards(recipes []recipeapi.Recipe, interactive bool) []Card {
	cards := make([]Card, 0, len(recipes))
	for i, rc := range recipes {
		tip := strings.TrimSpace(rc.ChefTip)
		if tip == "" {
			tip = DefaultChefTip
		}
		cards = append(cards, Card{
			Index:       i,
			Title:       rc.Title,
			Description: rc.Description,
			ImageURL:    strings.TrimSpace(rc.ImageURL),
			EmbedURL:    r.videos.Normalize(rc.VideoURL),
			PrepTime:    orNA(string(rc.PrepTime)),
			CookTime:    orNA(string(rc.CookTime)),
			Servings:    orNA(string(rc.Servings)),
			Calories:    orNA(string(rc.Calories)),
			Nutrition:   orNA(string(rc.NutritionInfo)),
			Ingredients: rc.Ingredients,
			Seasonings:  rc.Seasonings,
			Steps:       rc.Steps,
			ChefTip:     tip,
			Interactive: interactive,
		})
	}
	return cards
}

// Page writes the interactive page.
func (r *Renderer) Page(w io.Writer, p Page) error {
	if p.Title == "" {
		p.Title = DefaultTitle
	}
	data := pageData{
		Page:         p,
		Cards:        r.Cards(p.Recipes, true),
		Speaking:     p.Speech.Speaking,
		SpeakingStep: p.Speech.Step + 1,
	}
	return r.execute(w, "page", data)
}

// Results writes a standalone page listing recipes without controls.
func (r *Renderer) Results(w io.Writer, used []string, recipes []recipeapi.Recipe) error {
	return r.execute(w, "results", resultsData{
		Title:       DefaultTitle,
		Ingredients: used,
		Cards:       r.Cards(recipes, false),
		Generator:   r.generator,
	})
}

// WriteFile atomically writes a standalone results page to path.
func (r *Renderer) WriteFile(path string, used []string, recipes []recipeapi.Recipe) error {
	var buf bytes.Buffer
	if err := r.Results(&buf, used, recipes); err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("render: create dir for %s: %w", path, err)
	}
	if err := renameio.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("render: write %s: %w", path, err)
	}
	return nil
}

// Text writes recipes for a terminal.
func (r *Renderer) Text(w io.Writer, recipes []recipeapi.Recipe) error {
	var b strings.Builder
	for _, c := range r.Cards(recipes, false) {
		if c.Index > 0 {
			b.WriteString("\n")
		}
		fmt.Fprintf(&b, "== %d. %s ==\n", c.Index+1, c.Title)
		if c.Description != "" {
			fmt.Fprintf(&b, "%s\n", c.Description)
		}
		fmt.Fprintf(&b, "準備: %s | 烹飪: %s | 份量: %s | 熱量: %s | 營養: %s\n",
			c.PrepTime, c.CookTime, c.Servings, c.Calories, c.Nutrition)
		if c.ImageURL != "" {
			fmt.Fprintf(&b, "圖片: %s\n", c.ImageURL)
		}
		if c.EmbedURL != "" {
			fmt.Fprintf(&b, "影片: %s\n", c.EmbedURL)
		}
		fmt.Fprintf(&b, "食材: %s\n", strings.Join(c.Ingredients, "、"))
		fmt.Fprintf(&b, "調味料: %s\n", strings.Join(c.Seasonings, "、"))
		b.WriteString("步驟:\n")
		for i, step := range c.Steps {
			fmt.Fprintf(&b, "  %d. %s\n", i+1, step)
		}
		fmt.Fprintf(&b, "主廚小提示: %s\n", c.ChefTip)
	}
	_, err := io.WriteString(w, b.String())
	return err
}

func (r *Renderer) execute(w io.Writer, name string, data any) error {
	// Render into a buffer so a template error never leaves half a page.
	var buf bytes.Buffer
	if err := r.tmpl.ExecuteTemplate(&buf, name, data); err != nil {
		return fmt.Errorf("render: %s: %w", name, err)
	}
	_, err := buf.WriteTo(w)
	return err
}

func orNA(s string) string {
	if s = strings.TrimSpace(s); s == "" {
		return NotAvailable
	}
	return s
}
