package preview

import "time"

// Preview kinds.
const (
	KindImage = "image"
	KindNote  = "note"
)

// Preview is a persisted record of one interpreted webhook response.
type Preview struct {
	ID          string    `json:"id"`
	SourceURL   string    `json:"source_url"`
	Kind        string    `json:"kind"`
	Note        string    `json:"note,omitempty"`
	ImageURL    string    `json:"image_url,omitempty"` // remote or data reference
	Filename    string    `json:"filename,omitempty"`  // stored payload, when the webhook sent bytes
	ContentType string    `json:"content_type,omitempty"`
	Caption     string    `json:"caption,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Current-result statuses.
const (
	StatusLoading = "loading"
	StatusImage   = "image"
	StatusNote    = "note"
	StatusError   = "error"
)

// CurrentResult mirrors the single active result slot the page renders. At
// most one result is active; a newer submission supersedes the older one.
type CurrentResult struct {
	Seq       uint64   `json:"seq"`
	Status    string   `json:"status"`
	SourceURL string   `json:"source_url,omitempty"`
	Preview   *Preview `json:"preview,omitempty"`
	ErrorKind string   `json:"error_kind,omitempty"` // "webhook" or "transport"
	Error     string   `json:"error,omitempty"`
}
