package preview

import (
	"errors"
	"net/url"
	"regexp"
	"strings"
)

// ErrInvalidURL marks user input that cannot become an http(s) URL.
var ErrInvalidURL = errors.New("invalid url")

var schemePrefix = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9+.-]*://`)

// Normalize turns raw user input into an absolute URL with an explicit
// scheme. Input without a scheme prefix gets https:// prepended exactly
// once; anything that then fails to parse as an http or https URL is
// rejected with ErrInvalidURL.
func Normalize(raw string) (string, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return "", ErrInvalidURL
	}
	if !schemePrefix.MatchString(trimmed) {
		trimmed = "https://" + trimmed
	}

	u, err := url.Parse(trimmed)
	if err != nil {
		return "", ErrInvalidURL
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", ErrInvalidURL
	}
	if u.Host == "" {
		return "", ErrInvalidURL
	}
	return u.String(), nil
}
