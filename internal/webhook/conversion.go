package webhook

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"  // Register GIF decoder
	_ "image/jpeg" // Register JPEG decoder
	"image/png"
	"strings"

	"github.com/gen2brain/go-fitz"
	"github.com/gen2brain/heic"
)

// PreparePayload normalizes an image payload returned by the webhook so it
// can be stored and served to any browser. PDFs are rendered to PNG (first
// page) and HEIC/HEIF photos are decoded and re-encoded; PNG, JPEG, and GIF
// payloads pass through untouched. Returns the final bytes and media type.
func PreparePayload(data []byte, contentType string) ([]byte, string, error) {
	mediaType := strings.ToLower(strings.TrimSpace(contentType))

	switch {
	case mediaType == "application/pdf":
		converted, err := pdfToPNG(data)
		if err != nil {
			return nil, "", fmt.Errorf("rendering PDF payload: %w", err)
		}
		return converted, "image/png", nil

	case isHEICData(data) || isHEICType(mediaType):
		img, err := heic.Decode(bytes.NewReader(data))
		if err != nil {
			return nil, "", fmt.Errorf("decoding HEIC payload: %w", err)
		}
		converted, err := encodePNG(img)
		if err != nil {
			return nil, "", err
		}
		return converted, "image/png", nil

	case mediaType == "image/png" || mediaType == "image/jpeg" || mediaType == "image/gif":
		return data, mediaType, nil

	default:
		// Unfamiliar image type: re-encode when a registered decoder
		// understands it, otherwise store the bytes untouched and let
		// the browser deal with the original format.
		img, _, err := image.Decode(bytes.NewReader(data))
		if err != nil {
			return data, mediaType, nil
		}
		converted, err := encodePNG(img)
		if err != nil {
			return nil, "", err
		}
		return converted, "image/png", nil
	}
}

// pdfToPNG renders the first page of a PDF, which is what a thumbnail
// preview wants anyway.
func pdfToPNG(pdfData []byte) ([]byte, error) {
	doc, err := fitz.NewFromMemory(pdfData)
	if err != nil {
		return nil, fmt.Errorf("opening PDF: %w", err)
	}
	defer doc.Close()

	img, err := doc.Image(0)
	if err != nil {
		return nil, fmt.Errorf("rendering PDF page: %w", err)
	}
	return encodePNG(img)
}

func encodePNG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encoding PNG: %w", err)
	}
	return buf.Bytes(), nil
}

// isHEICData sniffs the ftyp box brands HEIC containers start with, since
// webhooks do not always label them correctly.
func isHEICData(data []byte) bool {
	if len(data) < 12 || string(data[4:8]) != "ftyp" {
		return false
	}
	switch string(data[8:12]) {
	case "heic", "heif", "mif1", "msf1":
		return true
	}
	return false
}

func isHEICType(mediaType string) bool {
	return strings.Contains(mediaType, "heic") || strings.Contains(mediaType, "heif")
}
