// Package session holds the page controller shared by the web UI and the
// terminal flow: photo slots, the ingredient checklist and generated recipes,
// moving between the upload, confirm and results steps.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/nupi-ai/fridgechef/internal/ingredients"
	"github.com/nupi-ai/fridgechef/internal/recipeapi"
)

// DefaultSlots is the number of photo pickers on the upload step.
const DefaultSlots = 3

// User-facing messages.
const (
	MsgNoImages       = "請至少上傳一張冰箱照片！"
	MsgNoIngredients  = "請至少選擇或輸入一樣食材！"
	MsgScanning       = "主廚正在掃描您的冰箱..."
	MsgDesigning      = "大廚正在為您設計菜單..."
	MsgIdentifyFailed = "食材辨識失敗："
	MsgIdentifyEmpty  = "AI 未能辨識出任何可用食材，請嘗試更清晰的照片。"
	MsgIdentifyBroken = "發生嚴重錯誤，請檢查後端伺服器是否運行。"
	MsgGenerateFailed = "食譜生成失敗："
	MsgGenerateEmpty  = "AI 未能設計出任何食譜，請調整食材後再試一次。"
	MsgGenerateBroken = "發生嚴重錯誤，無法生成食譜。"
)

var (
	// ErrNoImages is returned by Identify when every slot is empty.
	ErrNoImages = errors.New("session: no photos selected")
	// ErrNoIngredients is returned by Generate when nothing is checked or typed.
	ErrNoIngredients = errors.New("session: no ingredients selected")
	// ErrEmptyResult is returned when the backend succeeds with an empty list.
	ErrEmptyResult = errors.New("session: backend returned no results")
	// ErrSlot is returned for a slot index outside the picker range.
	ErrSlot = errors.New("session: slot out of range")
	// ErrStep is returned by Back for a step that is not behind the current one.
	ErrStep = errors.New("session: cannot go back to that step")
)

// Step is one section of the page.
type Step int

const (
	StepUpload Step = iota
	StepConfirm
	StepResults
)

func (s Step) String() string {
	switch s {
	case StepUpload:
		return "upload"
	case StepConfirm:
		return "confirm"
	case StepResults:
		return "results"
	default:
		return fmt.Sprintf("step(%d)", int(s))
	}
}

// ParseStep converts the String form back to a Step.
func ParseStep(s string) (Step, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "upload":
		return StepUpload, nil
	case "confirm":
		return StepConfirm, nil
	case "results":
		return StepResults, nil
	}
	return 0, fmt.Errorf("session: unknown step %q", s)
}

// Backend is the recipe service.
type Backend interface {
	IdentifyIngredients(ctx context.Context, images []recipeapi.Image) ([]string, error)
	GenerateRecipes(ctx context.Context, ingredients []string) ([]recipeapi.Recipe, error)
}

// Notifier surfaces messages to the user. Progress("") hides the indicator.
type Notifier interface {
	Alert(msg string)
	Progress(msg string)
}

// HistoryStore persists generated recipes.
type HistoryStore interface {
	Save(ctx context.Context, recipes []recipeapi.Recipe) error
}

// Options configure a Controller.
type Options struct {
	Slots   int          // defaults to DefaultSlots
	History HistoryStore // optional
	Logger  *slog.Logger
}

// Controller is the page view model. It is not safe for concurrent use.
type Controller struct {
	backend Backend
	notify  Notifier
	history HistoryStore
	log     *slog.Logger

	step      Step
	slots     []recipeapi.Image
	checklist *ingredients.Checklist
	extras    string
	recipes   []recipeapi.Recipe
}

// New returns a Controller on the upload step. A nil notifier only logs.
func New(backend Backend, notify Notifier, opts Options) *Controller {
	if backend == nil {
		panic("session: backend must not be nil")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "session")
	if notify == nil {
		notify = logNotifier{log: logger}
	}
	slots := opts.Slots
	if slots <= 0 {
		slots = DefaultSlots
	}
	return &Controller{
		backend: backend,
		notify:  notify,
		history: opts.History,
		log:     logger,
		slots:   make([]recipeapi.Image, slots),
	}
}

// Step reports the current section.
func (c *Controller) Step() Step { return c.step }

// SlotCount reports the number of photo pickers.
func (c *Controller) SlotCount() int { return len(c.slots) }

// SetSlot places a photo in picker i. An image without data empties the slot.
func (c *Controller) SetSlot(i int, img recipeapi.Image) error {
	if i < 0 || i >= len(c.slots) {
		return fmt.Errorf("%w: %d", ErrSlot, i)
	}
	c.slots[i] = img
	return nil
}

// ClearSlot empties picker i.
func (c *Controller) ClearSlot(i int) error {
	return c.SetSlot(i, recipeapi.Image{})
}

// Slots returns a copy of every picker, empty ones included.
func (c *Controller) Slots() []recipeapi.Image {
	return append([]recipeapi.Image(nil), c.slots...)
}

// Images returns the filled pickers in slot order.
func (c *Controller) Images() []recipeapi.Image {
	var out []recipeapi.Image
	for _, img := range c.slots {
		if len(img.Data) > 0 {
			out = append(out, img)
		}
	}
	return out
}

// Identify sends the selected photos to the backend and moves to the confirm
// step with a fresh checklist. On failure the controller stays on upload.
func (c *Controller) Identify(ctx context.Context) error {
	images := c.Images()
	if len(images) == 0 {
		c.notify.Alert(MsgNoImages)
		return ErrNoImages
	}

	c.notify.Progress(MsgScanning)
	defer c.notify.Progress("")

	names, err := c.backend.IdentifyIngredients(ctx, images)
	if err != nil {
		c.alertFailure(err, MsgIdentifyFailed, MsgIdentifyEmpty, MsgIdentifyBroken)
		return err
	}
	list := ingredients.New(names)
	if list.Len() == 0 {
		c.notify.Alert(MsgIdentifyFailed + MsgIdentifyEmpty)
		return ErrEmptyResult
	}

	c.checklist = list
	c.step = StepConfirm
	c.log.Info("ingredients identified", "images", len(images), "ingredients", list.Len())
	return nil
}

// Checklist returns the current checklist, nil before the first Identify.
func (c *Controller) Checklist() *ingredients.Checklist { return c.checklist }

// Toggle includes or excludes one identified ingredient.
func (c *Controller) Toggle(name string, checked bool) bool {
	return c.checklist.Set(name, checked)
}

// SetExtras replaces the free-text extra ingredients.
func (c *Controller) SetExtras(s string) { c.extras = s }

// Extras returns the free-text extra ingredients.
func (c *Controller) Extras() string { return c.extras }

// Ingredients is the list Generate would send: checked items plus extras,
// without duplicates.
func (c *Controller) Ingredients() []string {
	return ingredients.Merge(c.checklist.Selected(), c.extras)
}

// Generate asks the backend for recipes and moves to the results step. On
// failure the controller stays where it was.
func (c *Controller) Generate(ctx context.Context) error {
	final := c.Ingredients()
	if len(final) == 0 {
		c.notify.Alert(MsgNoIngredients)
		return ErrNoIngredients
	}

	c.notify.Progress(MsgDesigning)
	defer c.notify.Progress("")

	recipes, err := c.backend.GenerateRecipes(ctx, final)
	if err != nil {
		c.alertFailure(err, MsgGenerateFailed, MsgGenerateEmpty, MsgGenerateBroken)
		return err
	}
	if len(recipes) == 0 {
		c.notify.Alert(MsgGenerateFailed + MsgGenerateEmpty)
		return ErrEmptyResult
	}

	c.recipes = recipes
	c.step = StepResults
	c.log.Info("recipes generated", "ingredients", len(final), "recipes", len(recipes))

	if c.history != nil {
		if err := c.history.Save(ctx, recipes); err != nil {
			c.log.Warn("failed to save recipe history", "error", err)
		}
	}
	return nil
}

// Recipes returns the recipes from the last successful Generate.
func (c *Controller) Recipes() []recipeapi.Recipe {
	return append([]recipeapi.Recipe(nil), c.recipes...)
}

// Recipe returns recipe i of the current results.
func (c *Controller) Recipe(i int) (recipeapi.Recipe, bool) {
	if i < 0 || i >= len(c.recipes) {
		return recipeapi.Recipe{}, false
	}
	return c.recipes[i], true
}

// Back returns to an earlier step. Data entered on later steps is kept.
func (c *Controller) Back(to Step) error {
	if to < StepUpload || to >= c.step {
		return fmt.Errorf("%w: %s from %s", ErrStep, to, c.step)
	}
	c.step = to
	return nil
}

// alertFailure reports a backend error. Logical failures carry the server's
// message; anything else is a transport problem.
func (c *Controller) alertFailure(err error, prefix, fallback, broken string) {
	var apiErr *recipeapi.APIError
	if errors.As(err, &apiErr) {
		msg := strings.TrimSpace(apiErr.Message)
		if msg == "" {
			msg = fallback
		}
		c.log.Warn("backend rejected request", "endpoint", apiErr.Endpoint, "status", apiErr.Status, "error", apiErr.Message)
		c.notify.Alert(prefix + msg)
		return
	}
	c.log.Error("backend call failed", "error", err)
	c.notify.Alert(broken)
}

type logNotifier struct{ log *slog.Logger }

func (n logNotifier) Alert(msg string) { n.log.Warn("alert", "message", msg) }

func (n logNotifier) Progress(msg string) {
	if msg != "" {
		n.log.Info(msg)
	}
}
