package caption

import "context"

// Captioner produces a short natural-language description of an image.
type Captioner interface {
	// Caption describes the given image bytes.
	Caption(ctx context.Context, imageData []byte, contentType string) (string, error)
	// Close releases any underlying client resources.
	Close() error
}
