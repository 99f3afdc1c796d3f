package providers

import (
	"context"
)

// Config represents the configuration for an image generation request
type Config struct {
	Model       string
	Temperature float64
	Prompt      string
}

// Image is what a provider returned for a prompt.
// Either Data (inline bytes) or URL is set on a usable image.
type Image struct {
	MIMEType string
	Data     []byte
	URL      string
}

// Provider defines the interface for an image generation provider
type Provider interface {
	GenerateImage(ctx context.Context, config Config) (*Image, error)
}
