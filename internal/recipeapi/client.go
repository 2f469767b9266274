// Package recipeapi talks to the recipe backend: ingredient identification
// from photos and recipe generation from an ingredient list.
package recipeapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"
	"time"
)

const (
	// DefaultBaseURL is where the backend listens when run locally.
	DefaultBaseURL = "http://127.0.0.1:5000"

	// DefaultTimeout bounds one backend call; generation runs a model and
	// searches for visuals per recipe, so it is generous.
	DefaultTimeout = 2 * time.Minute

	identifyPath = "/api/identify-ingredients"
	generatePath = "/api/generate-recipes"

	maxBodyBytes = 8 << 20
)

var (
	// ErrNoImages is returned when IdentifyIngredients is called without photos.
	ErrNoImages = errors.New("recipeapi: no images")
	// ErrNoIngredients is returned when GenerateRecipes is called with an empty list.
	ErrNoIngredients = errors.New("recipeapi: no ingredients")
)

// APIError is a logical failure reported by the backend (`success: false`).
type APIError struct {
	Endpoint string
	Status   int
	Message  string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("recipeapi: %s failed (status %d)", e.Endpoint, e.Status)
	}
	return fmt.Sprintf("recipeapi: %s failed (status %d): %s", e.Endpoint, e.Status, e.Message)
}

// Image is one uploaded photo.
type Image struct {
	Name string
	Data []byte
}

// Recipe mirrors the backend recipe object.
type Recipe struct {
	Title         string   `json:"title"`
	Description   string   `json:"description"`
	ImageURL      string   `json:"image_url,omitempty"`
	VideoURL      string   `json:"video_url,omitempty"`
	PrepTime      Scalar   `json:"prep_time"`
	CookTime      Scalar   `json:"cook_time"`
	Servings      Scalar   `json:"servings"`
	Calories      Scalar   `json:"calories,omitempty"`
	NutritionInfo Scalar   `json:"nutrition_info,omitempty"`
	Ingredients   []string `json:"ingredients"`
	Seasonings    []string `json:"seasonings"`
	Steps         []string `json:"steps"`
	ChefTip       string   `json:"chef_tip,omitempty"`
}

// Scalar is a display field the backend may send as a string, a number or a
// bool. It is stored as text and always encoded as a JSON string.
type Scalar string

// UnmarshalJSON implements json.Unmarshaler.
func (s *Scalar) UnmarshalJSON(data []byte) error {
	raw := bytes.TrimSpace(data)
	switch {
	case bytes.Equal(raw, []byte("null")):
		*s = ""
	case len(raw) > 0 && raw[0] == '"':
		var v string
		if err := json.Unmarshal(raw, &v); err != nil {
			return err
		}
		*s = Scalar(v)
	case bytes.Equal(raw, []byte("true")), bytes.Equal(raw, []byte("false")):
		*s = Scalar(raw)
	default:
		f, err := strconv.ParseFloat(string(raw), 64)
		if err != nil {
			return fmt.Errorf("recipeapi: scalar field: unsupported value %s", raw)
		}
		*s = Scalar(strconv.FormatFloat(f, 'f', -1, 64))
	}
	return nil
}

type identifyResponse struct {
	Success     bool     `json:"success"`
	Ingredients []string `json:"ingredients"`
	Error       string   `json:"error,omitempty"`
}

type generateRequest struct {
	Ingredients []string `json:"ingredients"`
}

type generateResponse struct {
	Success bool     `json:"success"`
	Recipes []Recipe `json:"recipes"`
	Error   string   `json:"error,omitempty"`
}

// Observer receives the outcome of every backend call.
type Observer interface {
	ObserveCall(endpoint string, d time.Duration, err error)
}

// Client wraps HTTP calls to the recipe backend.
type Client struct {
	httpClient *http.Client
	baseURL    string
	userAgent  string
	observer   Observer
}

// Option customises a Client.
type Option func(*Client)

// WithHTTPClient replaces the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithUserAgent sets the User-Agent header sent with every request.
func WithUserAgent(ua string) Option {
	return func(c *Client) { c.userAgent = ua }
}

// WithObserver reports call latency and errors to o.
func WithObserver(o Observer) Option {
	return func(c *Client) { c.observer = o }
}

// NewClient constructs a backend client. timeout <= 0 leaves requests bounded
// only by their context.
func NewClient(baseURL string, timeout time.Duration, opts ...Option) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	c := &Client{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    strings.TrimRight(baseURL, "/"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// IdentifyIngredients uploads images and returns the identified ingredients.
func (c *Client) IdentifyIngredients(ctx context.Context, images []Image) (_ []string, err error) {
	start := time.Now()
	defer func() { c.observe(identifyPath, start, err) }()

	if len(images) == 0 {
		return nil, ErrNoImages
	}

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for i, img := range images {
		name := img.Name
		if name == "" {
			name = fmt.Sprintf("image%d.jpg", i+1)
		}
		part, err := mw.CreateFormFile("images", name)
		if err != nil {
			return nil, fmt.Errorf("recipeapi: create form file: %w", err)
		}
		if _, err := part.Write(img.Data); err != nil {
			return nil, fmt.Errorf("recipeapi: write form file: %w", err)
		}
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("recipeapi: close multipart body: %w", err)
	}

	var out identifyResponse
	status, err := c.post(ctx, identifyPath, mw.FormDataContentType(), &body, &out)
	if err != nil {
		return nil, err
	}
	if !out.Success {
		return nil, &APIError{Endpoint: identifyPath, Status: status, Message: out.Error}
	}
	return out.Ingredients, nil
}

// GenerateRecipes asks the backend for recipes using ingredients.
func (c *Client) GenerateRecipes(ctx context.Context, ingredients []string) (_ []Recipe, err error) {
	start := time.Now()
	defer func() { c.observe(generatePath, start, err) }()

	if len(ingredients) == 0 {
		return nil, ErrNoIngredients
	}
	payload, err := json.Marshal(generateRequest{Ingredients: ingredients})
	if err != nil {
		return nil, fmt.Errorf("recipeapi: marshal request: %w", err)
	}

	var out generateResponse
	status, err := c.post(ctx, generatePath, "application/json", bytes.NewReader(payload), &out)
	if err != nil {
		return nil, err
	}
	if !out.Success {
		return nil, &APIError{Endpoint: generatePath, Status: status, Message: out.Error}
	}
	return out.Recipes, nil
}

// post sends body and decodes the JSON envelope whatever the status code,
// since the backend reports logical failures with 4xx/5xx plus a JSON error.
func (c *Client) post(ctx context.Context, path, contentType string, body io.Reader, out any) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, body)
	if err != nil {
		return 0, fmt.Errorf("recipeapi: create request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Accept", "application/json")
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("recipeapi: http request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return resp.StatusCode, fmt.Errorf("recipeapi: read response: %w", err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		snippet := data
		if len(snippet) > 256 {
			snippet = snippet[:256]
		}
		return resp.StatusCode, fmt.Errorf("recipeapi: decode response (status %d): %w: %s", resp.StatusCode, err, snippet)
	}
	return resp.StatusCode, nil
}

func (c *Client) observe(endpoint string, start time.Time, err error) {
	if c.observer != nil {
		c.observer.ObserveCall(endpoint, time.Since(start), err)
	}
}
