package webhook

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/url"
	"strings"
)

// ResultKind identifies what the webhook response turned out to contain.
type ResultKind int

const (
	// KindImageData means the webhook answered with raw image bytes.
	KindImageData ResultKind = iota
	// KindImageRef means the webhook answered with an http(s) URL or a
	// data URI pointing at an image.
	KindImageRef
	// KindNote means the webhook answered, but nothing image-like was found.
	KindNote
)

// Result is the interpreted form of a webhook response.
type Result struct {
	Kind        ResultKind
	Data        []byte // set for KindImageData
	ContentType string // set for KindImageData
	Ref         string // set for KindImageRef
	Note        string // set for KindNote
}

var (
	// ErrWebhook is returned when the webhook answers with a non-2xx status.
	ErrWebhook = errors.New("webhook returned an error status")
	// ErrTransport is returned when the webhook could not be reached at all.
	ErrTransport = errors.New("webhook unreachable")
)

const (
	noteNoImageField = "webhook responded but no image field was found"
	noteEmptyBody    = "webhook responded with no body"
)

// fieldPriority lists the conventional names checked at each object level,
// in order, before descending into nested objects.
var fieldPriority = []string{"image", "imageUrl", "image_url", "thumbnail", "thumb", "url"}

// Interpret classifies a webhook response into an image payload, an image
// reference, or an advisory note. Malformed JSON is never an error here; it
// degrades to the "no image field" note.
func Interpret(status int, contentType string, body []byte) (*Result, error) {
	if status < 200 || status >= 300 {
		return nil, fmt.Errorf("%w: status %d", ErrWebhook, status)
	}

	mediaType := contentType
	if parsed, _, err := mime.ParseMediaType(contentType); err == nil {
		mediaType = parsed
	}
	mediaType = strings.ToLower(strings.TrimSpace(mediaType))

	switch {
	case strings.HasPrefix(mediaType, "image/") || mediaType == "application/pdf":
		// PDFs count as displayable payloads; PreparePayload renders
		// them to PNG before they are stored.
		return &Result{Kind: KindImageData, Data: body, ContentType: mediaType}, nil

	case isJSONType(mediaType):
		root, err := decodeOrdered(body)
		if err == nil {
			if ref, ok := findImageRef(root); ok {
				return &Result{Kind: KindImageRef, Ref: ref}, nil
			}
		}
		return &Result{Kind: KindNote, Note: noteNoImageField}, nil

	default:
		text := strings.TrimSpace(string(body))
		if text == "" {
			return &Result{Kind: KindNote, Note: noteEmptyBody}, nil
		}
		if looksLikeImageRef(text) {
			return &Result{Kind: KindImageRef, Ref: text}, nil
		}
		return &Result{Kind: KindNote, Note: noteNoImageField}, nil
	}
}

func isJSONType(mediaType string) bool {
	return mediaType == "application/json" || strings.HasSuffix(mediaType, "+json")
}

// looksLikeImageRef reports whether s is a data URI with an image MIME prefix
// or an absolute http(s) URL.
func looksLikeImageRef(s string) bool {
	if strings.HasPrefix(s, "data:image/") {
		return true
	}
	u, err := url.Parse(s)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

// jsonObject keeps members in document order. Order decides which nested
// object gets searched first when several could match.
type jsonObject struct {
	keys   []string
	values map[string]any
}

// decodeOrdered parses a JSON document into strings, json.Number, bools,
// nil, []any, and *jsonObject.
func decodeOrdered(data []byte) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	v, err := decodeValue(dec)
	if err != nil {
		return nil, err
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, fmt.Errorf("trailing data after JSON value")
	}
	return v, nil
}

func decodeValue(dec *json.Decoder) (any, error) {
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	delim, ok := tok.(json.Delim)
	if !ok {
		return tok, nil
	}
	switch delim {
	case '{':
		obj := &jsonObject{values: make(map[string]any)}
		for dec.More() {
			keyTok, err := dec.Token()
			if err != nil {
				return nil, err
			}
			key, ok := keyTok.(string)
			if !ok {
				return nil, fmt.Errorf("object key is not a string")
			}
			val, err := decodeValue(dec)
			if err != nil {
				return nil, err
			}
			if _, seen := obj.values[key]; !seen {
				obj.keys = append(obj.keys, key)
			}
			obj.values[key] = val
		}
		if _, err := dec.Token(); err != nil { // consume '}'
			return nil, err
		}
		return obj, nil
	case '[':
		arr := []any{}
		for dec.More() {
			val, err := decodeValue(dec)
			if err != nil {
				return nil, err
			}
			arr = append(arr, val)
		}
		if _, err := dec.Token(); err != nil { // consume ']'
			return nil, err
		}
		return arr, nil
	}
	return nil, fmt.Errorf("unexpected delimiter %q", delim)
}

// findImageRef searches a decoded JSON value for a string that looks like an
// image reference. At each object level the conventional field names are
// tried first; only then does the search recurse depth-first into nested
// objects. Arrays are not traversed. First match wins.
func findImageRef(v any) (string, bool) {
	obj, ok := v.(*jsonObject)
	if !ok {
		return "", false
	}
	for _, name := range fieldPriority {
		if s, ok := obj.values[name].(string); ok && looksLikeImageRef(s) {
			return s, true
		}
	}
	for _, key := range obj.keys {
		if ref, ok := findImageRef(obj.values[key]); ok {
			return ref, true
		}
	}
	return "", false
}

// DecodeDataURI splits a data URI into its payload bytes and media type.
func DecodeDataURI(s string) ([]byte, string, error) {
	rest, ok := strings.CutPrefix(s, "data:")
	if !ok {
		return nil, "", fmt.Errorf("not a data URI")
	}
	meta, payload, ok := strings.Cut(rest, ",")
	if !ok {
		return nil, "", fmt.Errorf("malformed data URI")
	}
	mediaType, base64Enc := strings.CutSuffix(meta, ";base64")
	if mediaType == "" {
		mediaType = "text/plain"
	}
	if base64Enc {
		data, err := base64.StdEncoding.DecodeString(payload)
		if err != nil {
			return nil, "", fmt.Errorf("decoding data URI payload: %w", err)
		}
		return data, mediaType, nil
	}
	decoded, err := url.QueryUnescape(payload)
	if err != nil {
		return nil, "", fmt.Errorf("unescaping data URI payload: %w", err)
	}
	return []byte(decoded), mediaType, nil
}
