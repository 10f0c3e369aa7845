package caption

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

const captionPrompt = `Describe this image in one or two short sentences, as a caption
for a link preview. Mention the most prominent subject. Plain text only, no markdown.`

// Gemini implements the Captioner interface using Google Gemini vision.
type Gemini struct {
	client *genai.Client
	model  *genai.GenerativeModel
}

// NewGemini creates a new Gemini Captioner instance.
func NewGemini(apiKey string, modelName string) (*Gemini, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini api key is required")
	}
	if modelName == "" {
		modelName = "gemini-2.5-pro"
	}

	ctx := context.Background()
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("creating gemini client: %w", err)
	}

	return &Gemini{
		client: client,
		model:  client.GenerativeModel(modelName),
	}, nil
}

// Caption describes the given image bytes.
func (g *Gemini) Caption(ctx context.Context, imageData []byte, contentType string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	// genai.ImageData wants the bare format suffix ("png"), not the MIME type.
	format := "png"
	if mt := strings.ToLower(strings.TrimSpace(contentType)); strings.HasPrefix(mt, "image/") {
		format = strings.TrimPrefix(mt, "image/")
	}

	resp, err := g.model.GenerateContent(ctx,
		genai.ImageData(format, imageData),
		genai.Text(captionPrompt),
	)
	if err != nil {
		return "", fmt.Errorf("generating caption: %w", err)
	}

	if len(resp.Candidates) == 0 || len(resp.Candidates[0].Content.Parts) == 0 {
		return "", fmt.Errorf("no response from gemini")
	}

	var out strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if text, ok := part.(genai.Text); ok {
			out.WriteString(string(text))
		}
	}

	text := strings.TrimSpace(out.String())
	if text == "" {
		return "", fmt.Errorf("gemini returned no text")
	}
	return text, nil
}

// Close closes the Gemini client.
func (g *Gemini) Close() error {
	return g.client.Close()
}
