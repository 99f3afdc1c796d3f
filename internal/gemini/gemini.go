package gemini

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"github.com/lehigh-university-libraries/shelfwise/internal/providers"
	"google.golang.org/api/option"
)

const (
	// DefaultModel returns image parts without extra response settings
	DefaultModel   = "gemini-2.5-flash-image"
	defaultBaseURL = "https://generativelanguage.googleapis.com/v1beta"
)

// Gemini is a provider for Google Gemini
type Gemini struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
}

// New returns a new Gemini provider
func New(apiKey string) *Gemini {
	return &Gemini{
		apiKey:     apiKey,
		baseURL:    defaultBaseURL,
		httpClient: &http.Client{},
	}
}

// WithBaseURL points the REST route at a different API root
func (g *Gemini) WithBaseURL(baseURL string) *Gemini {
	g.baseURL = strings.TrimSuffix(baseURL, "/")
	return g
}

// GenerateImage asks Gemini for an image for the given prompt.
// A response without any image part yields (nil, nil).
func (g *Gemini) GenerateImage(ctx context.Context, config providers.Config) (*providers.Image, error) {
	if g.apiKey == "" {
		return nil, fmt.Errorf("GEMINI_API_KEY environment variable not set")
	}

	modelName := normalizeModel(config.Model)
	if modelName == "" {
		modelName = DefaultModel
	}

	// genai v0.20.1 cannot set response modalities
	if needsImageModality(modelName) {
		return g.generateREST(ctx, modelName, config)
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(g.apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create new gemini client: %w", err)
	}
	defer client.Close()

	model := client.GenerativeModel(modelName)
	if config.Temperature > 0 {
		model.SetTemperature(float32(config.Temperature))
	}

	resp, err := model.GenerateContent(ctx, genai.Text(config.Prompt))
	if err != nil {
		return nil, fmt.Errorf("failed to generate content: %w", err)
	}

	return firstImage(resp), nil
}

// needsImageModality reports models that only return an image when the
// request asks for text and image output
func needsImageModality(model string) bool {
	return strings.Contains(model, "image-generation") || strings.HasPrefix(model, "gemini-2.0-flash-exp")
}

func normalizeModel(model string) string {
	return strings.TrimPrefix(strings.TrimSpace(model), "models/")
}

func firstImage(resp *genai.GenerateContentResponse) *providers.Image {
	if resp == nil {
		return nil
	}
	for _, candidate := range resp.Candidates {
		if candidate == nil || candidate.Content == nil {
			continue
		}
		for _, part := range candidate.Content.Parts {
			switch p := part.(type) {
			case genai.Blob:
				if len(p.Data) > 0 {
					return &providers.Image{MIMEType: p.MIMEType, Data: p.Data}
				}
			case genai.Text:
				slog.Debug("Gemini returned text alongside image request", "length", len(p))
			}
		}
	}
	return nil
}

// REST route for models that need generationConfig.responseModalities

type part struct {
	Text       string      `json:"text,omitempty"`
	InlineData *inlineData `json:"inlineData,omitempty"`
}

type inlineData struct {
	MIMEType string `json:"mimeType"`
	Data     []byte `json:"data"`
}

type content struct {
	Role  string `json:"role,omitempty"`
	Parts []part `json:"parts"`
}

type generationConfig struct {
	ResponseModalities []string `json:"responseModalities"`
	Temperature        *float64 `json:"temperature,omitempty"`
}

type generateRequest struct {
	Contents         []content        `json:"contents"`
	GenerationConfig generationConfig `json:"generationConfig"`
}

type generateResponse struct {
	Candidates []struct {
		Content content `json:"content"`
	} `json:"candidates"`
}

type errorResponse struct {
	Error struct {
		Message string `json:"message"`
	} `json:"error"`
}

func (g *Gemini) generateREST(ctx context.Context, modelName string, config providers.Config) (*providers.Image, error) {
	reqBody := generateRequest{
		Contents: []content{
			{Role: "user", Parts: []part{{Text: config.Prompt}}},
		},
		GenerationConfig: generationConfig{
			ResponseModalities: []string{"TEXT", "IMAGE"},
		},
	}
	if config.Temperature > 0 {
		temperature := config.Temperature
		reqBody.GenerationConfig.Temperature = &temperature
	}

	body, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/models/%s:generateContent", g.baseURL, modelName)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-goog-api-key", g.apiKey)

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to generate content: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var errResp errorResponse
		_ = json.NewDecoder(resp.Body).Decode(&errResp)
		if errResp.Error.Message != "" {
			return nil, fmt.Errorf("gemini api error: %s", errResp.Error.Message)
		}
		return nil, fmt.Errorf("gemini api error: %s", resp.Status)
	}

	var out generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	for _, candidate := range out.Candidates {
		for _, p := range candidate.Content.Parts {
			if p.InlineData != nil && len(p.InlineData.Data) > 0 {
				return &providers.Image{MIMEType: p.InlineData.MIMEType, Data: p.InlineData.Data}, nil
			}
			if p.Text != "" {
				slog.Debug("Gemini returned text alongside image request", "length", len(p.Text))
			}
		}
	}
	return nil, nil
}
