package preview

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/teDdyMucho/tumbnail-creator/internal/caption"
	"github.com/teDdyMucho/tumbnail-creator/internal/webhook"
)

var (
	// ErrDownloadFailed marks a remote image reference that could not be
	// fetched for saving.
	ErrDownloadFailed = errors.New("download failed")
	// ErrInvalidTheme marks a theme value outside {dark, light}.
	ErrInvalidTheme = errors.New("theme must be \"dark\" or \"light\"")
	// ErrCaptionDisabled is returned when no captioner is configured.
	ErrCaptionDisabled = errors.New("captioning is not configured")
	// ErrNoStoredImage is returned when a preview has no payload to work on.
	ErrNoStoredImage = errors.New("preview has no stored image")
)

const themeKey = "theme"

// IDGenerator mints ids for previews.
type IDGenerator interface {
	Generate() string
}

// TimeSource provides the current time.
type TimeSource interface {
	Now() time.Time
}

type uuidGenerator struct{}

func (uuidGenerator) Generate() string { return uuid.NewString() }

type wallClock struct{}

func (wallClock) Now() time.Time { return time.Now() }

// Service owns the submission lifecycle: normalize, call the webhook,
// interpret, persist, and keep the single current-result slot up to date.
type Service struct {
	db        DB
	webhook   webhook.Submitter
	store     ImageStore
	captioner caption.Captioner // nil when the feature is off
	toasts    *Toaster
	fetch     *http.Client
	idGen     IDGenerator
	clock     TimeSource

	mu      sync.Mutex
	seq     uint64
	current CurrentResult
}

// NewService creates a Service with default id generation and clock. The
// captioner may be nil.
func NewService(db DB, hook webhook.Submitter, store ImageStore, captioner caption.Captioner, toasts *Toaster) *Service {
	return &Service{
		db:        db,
		webhook:   hook,
		store:     store,
		captioner: captioner,
		toasts:    toasts,
		fetch:     &http.Client{Timeout: 15 * time.Second},
		idGen:     uuidGenerator{},
		clock:     wallClock{},
	}
}

// NewServiceWithDeps creates a Service with custom seams for testing.
func NewServiceWithDeps(db DB, hook webhook.Submitter, store ImageStore, captioner caption.Captioner, toasts *Toaster, idGen IDGenerator, clock TimeSource) *Service {
	s := NewService(db, hook, store, captioner, toasts)
	s.idGen = idGen
	s.clock = clock
	return s
}

// Submit runs one full submission. The returned Preview is persisted even if
// a newer submission has superseded this one in the current slot.
func (s *Service) Submit(ctx context.Context, rawURL string) (*Preview, error) {
	normalized, err := Normalize(rawURL)
	if err != nil {
		return nil, err
	}

	seq := s.begin(normalized)

	result, err := s.webhook.Submit(ctx, normalized)
	if err != nil {
		s.completeError(seq, normalized, err)
		return nil, err
	}

	p, err := s.buildPreview(normalized, result)
	if err != nil {
		s.completeError(seq, normalized, err)
		return nil, err
	}

	if err := s.db.SavePreview(p); err != nil {
		if p.Filename != "" {
			if removeErr := s.store.Remove(p.Filename); removeErr != nil {
				slog.Warn("Failed to remove orphaned payload", "filename", p.Filename, "error", removeErr)
			}
		}
		err = fmt.Errorf("saving preview: %w", err)
		s.completeError(seq, normalized, err)
		return nil, err
	}

	s.complete(seq, p)
	return p, nil
}

// begin claims the current slot for a new submission and returns its
// sequence number.
func (s *Service) begin(normalized string) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	s.current = CurrentResult{Seq: s.seq, Status: StatusLoading, SourceURL: normalized}
	return s.seq
}

// complete applies a finished interpretation to the current slot, unless a
// newer submission has claimed it in the meantime. Stale completions are
// discarded wholesale, toasts included.
func (s *Service) complete(seq uint64, p *Preview) {
	s.mu.Lock()
	if seq != s.seq {
		s.mu.Unlock()
		slog.Info("Discarding superseded result", "seq", seq, "current", s.seq)
		return
	}
	status := StatusImage
	if p.Kind == KindNote {
		status = StatusNote
	}
	s.current = CurrentResult{Seq: seq, Status: status, SourceURL: p.SourceURL, Preview: p}
	s.mu.Unlock()

	if p.Kind == KindNote {
		s.toasts.Push(p.Note, ToastInfo)
	} else {
		s.toasts.Push("Preview ready", ToastSuccess)
	}
}

func (s *Service) completeError(seq uint64, normalized string, err error) {
	kind := "webhook"
	severity := ToastError
	text := "Webhook returned an error"
	if errors.Is(err, webhook.ErrTransport) {
		// A transport failure is not the webhook misbehaving; surface
		// it as informational so the user can tell the two apart.
		kind = "transport"
		severity = ToastInfo
		text = "Could not reach the webhook (network error)"
	}

	s.mu.Lock()
	if seq != s.seq {
		s.mu.Unlock()
		slog.Info("Discarding superseded error", "seq", seq, "current", s.seq)
		return
	}
	s.current = CurrentResult{
		Seq:       seq,
		Status:    StatusError,
		SourceURL: normalized,
		ErrorKind: kind,
		Error:     err.Error(),
	}
	s.mu.Unlock()

	s.toasts.Push(text, severity)
}

// buildPreview turns an interpreted result into a persisted Preview record.
func (s *Service) buildPreview(normalized string, result *webhook.Result) (*Preview, error) {
	now := s.clock.Now()
	p := &Preview{
		ID:        s.idGen.Generate(),
		SourceURL: normalized,
		CreatedAt: now,
		UpdatedAt: now,
	}

	switch result.Kind {
	case webhook.KindImageData:
		data, contentType, err := webhook.PreparePayload(result.Data, result.ContentType)
		if err != nil {
			return nil, fmt.Errorf("preparing payload: %w", err)
		}
		name, err := s.store.Put(p.ID+extensionFor(contentType), data)
		if err != nil {
			return nil, fmt.Errorf("storing payload: %w", err)
		}
		p.Kind = KindImage
		p.Filename = name
		p.ContentType = contentType

	case webhook.KindImageRef:
		p.Kind = KindImage
		p.ImageURL = result.Ref

	default:
		p.Kind = KindNote
		p.Note = result.Note
	}

	return p, nil
}

// Current returns a snapshot of the active result slot.
func (s *Service) Current() CurrentResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// GetPreview retrieves a preview by ID.
func (s *Service) GetPreview(id string) (*Preview, error) {
	p, err := s.db.GetPreview(id)
	if err != nil {
		return nil, fmt.Errorf("getting preview: %w", err)
	}
	return p, nil
}

// ListPreviews returns all stored previews.
func (s *Service) ListPreviews() ([]*Preview, error) {
	previews, err := s.db.ListPreviews()
	if err != nil {
		return nil, fmt.Errorf("listing previews: %w", err)
	}
	return previews, nil
}

// DeletePreview removes a preview and its stored payload, if any.
func (s *Service) DeletePreview(id string) error {
	p, err := s.db.GetPreview(id)
	if err != nil {
		return fmt.Errorf("getting preview for deletion: %w", err)
	}
	if p.Filename != "" {
		if err := s.store.Remove(p.Filename); err != nil {
			slog.Warn("Failed to remove payload", "filename", p.Filename, "error", err)
		}
	}
	if err := s.db.DeletePreview(id); err != nil {
		return fmt.Errorf("deleting preview: %w", err)
	}
	return nil
}

// GetImage returns the stored payload bytes for a preview.
func (s *Service) GetImage(id string) ([]byte, string, error) {
	p, err := s.db.GetPreview(id)
	if err != nil {
		return nil, "", fmt.Errorf("getting preview: %w", err)
	}
	if p.Filename == "" {
		return nil, "", ErrNoStoredImage
	}
	data, err := s.store.Open(p.Filename)
	if err != nil {
		return nil, "", fmt.Errorf("opening payload: %w", err)
	}
	return data, p.ContentType, nil
}

// Download materializes a preview's image for saving: stored payloads come
// straight from the store, data URIs are decoded, and remote references are
// fetched. The attachment filename derives from the reference's last path
// segment, defaulting to preview.png.
func (s *Service) Download(ctx context.Context, id string) ([]byte, string, string, error) {
	p, err := s.db.GetPreview(id)
	if err != nil {
		return nil, "", "", fmt.Errorf("getting preview: %w", err)
	}

	switch {
	case p.Filename != "":
		data, err := s.store.Open(p.Filename)
		if err != nil {
			return nil, "", "", fmt.Errorf("opening payload: %w", err)
		}
		return data, p.ContentType, downloadFilename(p.SourceURL), nil

	case strings.HasPrefix(p.ImageURL, "data:"):
		data, contentType, err := webhook.DecodeDataURI(p.ImageURL)
		if err != nil {
			return nil, "", "", fmt.Errorf("%w: %v", ErrDownloadFailed, err)
		}
		return data, contentType, "preview.png", nil

	case p.ImageURL != "":
		data, contentType, err := s.fetchRemote(ctx, p.ImageURL)
		if err != nil {
			s.toasts.Push("Download failed", ToastError)
			return nil, "", "", err
		}
		return data, contentType, downloadFilename(p.ImageURL), nil

	default:
		return nil, "", "", ErrNoStoredImage
	}
}

func (s *Service) fetchRemote(ctx context.Context, ref string) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ref, nil)
	if err != nil {
		return nil, "", fmt.Errorf("%w: %v", ErrDownloadFailed, err)
	}
	resp, err := s.fetch.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("%w: %v", ErrDownloadFailed, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, "", fmt.Errorf("%w: status %d", ErrDownloadFailed, resp.StatusCode)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", fmt.Errorf("%w: %v", ErrDownloadFailed, err)
	}
	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	return data, contentType, nil
}

// Favicon fetches {origin}/favicon.ico for the given page URL. Best effort;
// callers hide the icon on any error.
func (s *Service) Favicon(ctx context.Context, rawURL string) ([]byte, string, error) {
	normalized, err := Normalize(rawURL)
	if err != nil {
		return nil, "", err
	}
	u, err := url.Parse(normalized)
	if err != nil {
		return nil, "", ErrInvalidURL
	}
	iconURL := u.Scheme + "://" + u.Host + "/favicon.ico"

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, iconURL, nil)
	if err != nil {
		return nil, "", err
	}
	resp, err := s.fetch.Do(req)
	if err != nil {
		return nil, "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, "", fmt.Errorf("favicon fetch: status %d", resp.StatusCode)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", err
	}
	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "image/x-icon"
	}
	return data, contentType, nil
}

// CaptionPreview describes a stored preview image via the configured
// captioner and persists the caption on the record.
func (s *Service) CaptionPreview(ctx context.Context, id string) (*Preview, error) {
	if s.captioner == nil {
		return nil, ErrCaptionDisabled
	}
	p, err := s.db.GetPreview(id)
	if err != nil {
		return nil, fmt.Errorf("getting preview: %w", err)
	}
	if p.Filename == "" {
		return nil, ErrNoStoredImage
	}
	data, err := s.store.Open(p.Filename)
	if err != nil {
		return nil, fmt.Errorf("opening payload: %w", err)
	}

	text, err := s.captioner.Caption(ctx, data, p.ContentType)
	if err != nil {
		return nil, fmt.Errorf("captioning preview: %w", err)
	}

	p.Caption = text
	p.UpdatedAt = s.clock.Now()
	if err := s.db.SavePreview(p); err != nil {
		return nil, fmt.Errorf("saving caption: %w", err)
	}
	return p, nil
}

// Theme returns the explicitly chosen theme, or "" when the user never
// picked one and the client should follow the platform preference.
func (s *Service) Theme() (string, error) {
	value, err := s.db.GetSetting(themeKey)
	if err != nil {
		return "", fmt.Errorf("reading theme: %w", err)
	}
	return value, nil
}

// SetTheme persists an explicit theme choice.
func (s *Service) SetTheme(value string) error {
	if value != "dark" && value != "light" {
		return ErrInvalidTheme
	}
	if err := s.db.PutSetting(themeKey, value); err != nil {
		return fmt.Errorf("saving theme: %w", err)
	}
	return nil
}

// Toasts exposes the notifier for the HTTP layer.
func (s *Service) Toasts() *Toaster {
	return s.toasts
}

// downloadFilename derives an attachment name from the reference's last path
// segment; anything without an extension falls back to preview.png.
func downloadFilename(ref string) string {
	u, err := url.Parse(ref)
	if err != nil {
		return "preview.png"
	}
	base := path.Base(u.Path)
	if base == "." || base == "/" || !strings.Contains(base, ".") {
		return "preview.png"
	}
	return base
}

// extensionFor picks a storage extension for a payload media type.
func extensionFor(contentType string) string {
	switch contentType {
	case "image/png":
		return ".png"
	case "image/jpeg":
		return ".jpg"
	case "image/gif":
		return ".gif"
	case "image/webp":
		return ".webp"
	case "image/svg+xml":
		return ".svg"
	default:
		return ".bin"
	}
}
