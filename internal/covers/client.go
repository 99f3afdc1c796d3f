package covers

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/lehigh-university-libraries/shelfwise/internal/gemini"
	"github.com/lehigh-university-libraries/shelfwise/internal/openai"
	"github.com/lehigh-university-libraries/shelfwise/internal/providers"
)

// ErrEmptyCover is returned when the provider answered without an image
var ErrEmptyCover = errors.New("cover generation returned no image")

// Input is the book information a cover is drawn from
type Input struct {
	Title  string
	Author string
	ISBN   string
}

// Settings selects and tunes the image provider
type Settings struct {
	Provider     string
	Model        string
	Temperature  float64
	Timeout      time.Duration
	GeminiAPIKey string
	OpenAIAPIKey string
}

// Client turns book details into a cover image reference
type Client struct {
	provider providers.Provider
	name     string
	model    string
	temp     float64
	timeout  time.Duration
}

// NewClient wraps an already constructed provider
func NewClient(provider providers.Provider, name, model string, timeout time.Duration) *Client {
	return &Client{
		provider: provider,
		name:     name,
		model:    model,
		timeout:  timeout,
	}
}

// New builds a Client for the configured provider
func New(settings Settings) (*Client, error) {
	var provider providers.Provider
	switch settings.Provider {
	case "", "gemini":
		settings.Provider = "gemini"
		provider = gemini.New(settings.GeminiAPIKey)
	case "openai":
		provider = openai.New(settings.OpenAIAPIKey)
	default:
		return nil, fmt.Errorf("unsupported provider: %s", settings.Provider)
	}

	client := NewClient(provider, settings.Provider, settings.Model, settings.Timeout)
	client.temp = settings.Temperature
	return client, nil
}

// BuildPrompt renders the cover prompt for a book
func BuildPrompt(input Input) string {
	return fmt.Sprintf(`Generate a book cover image based on the following information:

Title: %s
Author: %s
ISBN: %s

The image should be visually appealing and relevant to the book's content.`,
		input.Title,
		input.Author,
		input.ISBN,
	)
}

// Generate issues exactly one provider request and returns the image
// reference: the hosted URL, or an inline data URI.
func (c *Client) Generate(ctx context.Context, input Input) (string, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	start := time.Now()
	image, err := c.provider.GenerateImage(ctx, providers.Config{
		Model:       c.model,
		Temperature: c.temp,
		Prompt:      BuildPrompt(input),
	})
	if err != nil {
		return "", fmt.Errorf("failed to generate cover with %s: %w", c.name, err)
	}

	ref := Reference(image)
	if ref == "" {
		return "", ErrEmptyCover
	}

	slog.Info("Generated cover", "provider", c.name, "isbn", input.ISBN, "duration", time.Since(start))
	return ref, nil
}

// Reference converts a provider image into the string stored on a book.
// It returns "" when the image carries nothing usable.
func Reference(image *providers.Image) string {
	if image == nil {
		return ""
	}
	if len(image.Data) > 0 {
		mimeType := image.MIMEType
		if mimeType == "" {
			mimeType = "image/png"
		}
		return "data:" + mimeType + ";base64," + base64.StdEncoding.EncodeToString(image.Data)
	}
	return image.URL
}
