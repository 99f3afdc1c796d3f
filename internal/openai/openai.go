package openai

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/lehigh-university-libraries/shelfwise/internal/providers"
)

const (
	defaultBaseURL = "https://api.openai.com/v1"
	DefaultModel   = "gpt-image-1"
	coverSize      = "1024x1536"
)

// OpenAI is a provider for the OpenAI images API
type OpenAI struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
}

// New returns a new OpenAI provider
func New(apiKey string) *OpenAI {
	return &OpenAI{
		apiKey:     apiKey,
		baseURL:    defaultBaseURL,
		httpClient: &http.Client{},
	}
}

// WithBaseURL points the provider at a different API root
func (o *OpenAI) WithBaseURL(baseURL string) *OpenAI {
	o.baseURL = baseURL
	return o
}

// GenerateImage requests a single image for the prompt.
// A response without image data yields (nil, nil).
func (o *OpenAI) GenerateImage(ctx context.Context, config providers.Config) (*providers.Image, error) {
	if o.apiKey == "" {
		return nil, fmt.Errorf("OPENAI_API_KEY environment variable not set")
	}

	model := config.Model
	if model == "" {
		model = DefaultModel
	}

	requestBody, err := json.Marshal(map[string]interface{}{
		"model":  model,
		"prompt": config.Prompt,
		"n":      1,
		"size":   coverSize,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", o.baseURL+"/images/generations", bytes.NewBuffer(requestBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+o.apiKey)

	resp, err := o.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("received non-200 status code: %d - %s", resp.StatusCode, string(body))
	}

	var response struct {
		Data []struct {
			B64JSON string `json:"b64_json"`
			URL     string `json:"url"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return nil, fmt.Errorf("failed to decode response body: %w", err)
	}

	if len(response.Data) == 0 {
		return nil, nil
	}

	first := response.Data[0]
	if first.B64JSON != "" {
		data, err := base64.StdEncoding.DecodeString(first.B64JSON)
		if err != nil {
			return nil, fmt.Errorf("failed to decode image data: %w", err)
		}
		return &providers.Image{MIMEType: "image/png", Data: data}, nil
	}
	if first.URL != "" {
		return &providers.Image{URL: first.URL}, nil
	}
	return nil, nil
}
