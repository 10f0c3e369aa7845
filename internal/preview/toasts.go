package preview

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Toast severities.
const (
	ToastSuccess = "success"
	ToastError   = "error"
	ToastInfo    = "info"
)

// DefaultToastTTL is how long a toast stays visible when nobody dismisses it.
const DefaultToastTTL = 3 * time.Second

// Toast is one ephemeral notification. Toasts are never persisted.
type Toast struct {
	ID        string    `json:"id"`
	Text      string    `json:"text"`
	Severity  string    `json:"severity"`
	CreatedAt time.Time `json:"created_at"`
}

type toastEntry struct {
	toast Toast
	timer *time.Timer
}

// Toaster keeps the visible notification queue. Every entry carries its own
// expiry timer keyed by id; manual dismissal cancels the timer. Listing
// preserves insertion order.
type Toaster struct {
	mu      sync.Mutex
	ttl     time.Duration
	order   []string
	entries map[string]*toastEntry
}

// NewToaster creates a Toaster whose entries expire after ttl.
func NewToaster(ttl time.Duration) *Toaster {
	if ttl <= 0 {
		ttl = DefaultToastTTL
	}
	return &Toaster{
		ttl:     ttl,
		entries: make(map[string]*toastEntry),
	}
}

// Push appends a toast and schedules its expiry.
func (t *Toaster) Push(text, severity string) Toast {
	toast := Toast{
		ID:        uuid.NewString(),
		Text:      text,
		Severity:  severity,
		CreatedAt: time.Now(),
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	entry := &toastEntry{toast: toast}
	entry.timer = time.AfterFunc(t.ttl, func() {
		t.Dismiss(toast.ID)
	})
	t.entries[toast.ID] = entry
	t.order = append(t.order, toast.ID)
	return toast
}

// Dismiss removes a toast immediately, whether called by a user or by the
// toast's own timer. Reports whether the toast was still visible.
func (t *Toaster) Dismiss(id string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	entry, ok := t.entries[id]
	if !ok {
		return false
	}
	entry.timer.Stop()
	delete(t.entries, id)
	for i, existing := range t.order {
		if existing == id {
			t.order = append(t.order[:i], t.order[i+1:]...)
			break
		}
	}
	return true
}

// List returns the visible toasts in insertion order.
func (t *Toaster) List() []Toast {
	t.mu.Lock()
	defer t.mu.Unlock()

	toasts := make([]Toast, 0, len(t.order))
	for _, id := range t.order {
		toasts = append(toasts, t.entries[id].toast)
	}
	return toasts
}
