package preview

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/teDdyMucho/tumbnail-creator/internal/webhook"
)

// setCORSHeaders sets CORS headers on a response.
func setCORSHeaders(w http.ResponseWriter) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
	w.Header().Set("Access-Control-Max-Age", "3600")
}

// corsError writes a plain error response with CORS headers set.
func corsError(w http.ResponseWriter, message string, code int) {
	setCORSHeaders(w)
	http.Error(w, message, code)
}

// writeJSON encodes v with CORS headers and the given status.
func writeJSON(w http.ResponseWriter, code int, v any) {
	setCORSHeaders(w)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Error encoding response", "error", err)
	}
}

// writeError encodes the failure taxonomy the page renders: a message plus a
// machine-readable kind.
func writeError(w http.ResponseWriter, code int, kind, message string) {
	writeJSON(w, code, map[string]string{"error": message, "kind": kind})
}

// handleIndex serves the embedded page.
func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	setCORSHeaders(w)
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(indexHTML)
}

// handleStaticCSS serves the stylesheet.
func (s *Server) handleStaticCSS(w http.ResponseWriter, r *http.Request) {
	setCORSHeaders(w)
	w.Header().Set("Content-Type", "text/css")
	w.Write(appCSS)
}

// handleStaticJS serves the page script.
func (s *Server) handleStaticJS(w http.ResponseWriter, r *http.Request) {
	setCORSHeaders(w)
	w.Header().Set("Content-Type", "application/javascript; charset=utf-8")
	w.Write(appJS)
}

// handleSubmit runs one submission end to end.
func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var req struct {
		URL string `json:"url"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "Invalid request body")
		return
	}

	p, err := s.service.Submit(r.Context(), req.URL)
	if err != nil {
		switch {
		case errors.Is(err, ErrInvalidURL):
			writeError(w, http.StatusBadRequest, "invalid_url", "Enter a valid http or https URL")
		case errors.Is(err, webhook.ErrTransport):
			writeError(w, http.StatusBadGateway, "transport", "Could not reach the webhook")
		case errors.Is(err, webhook.ErrWebhook):
			writeError(w, http.StatusBadGateway, "webhook", err.Error())
		default:
			slog.Error("Error processing submission", "url", req.URL, "error", err)
			writeError(w, http.StatusInternalServerError, "internal", "Internal server error")
		}
		return
	}

	writeJSON(w, http.StatusCreated, p)
}

// handleCurrent reports the active result slot.
func (s *Server) handleCurrent(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.service.Current())
}

// handleListPreviews returns all stored previews.
func (s *Server) handleListPreviews(w http.ResponseWriter, r *http.Request) {
	previews, err := s.service.ListPreviews()
	if err != nil {
		slog.Error("Error listing previews", "error", err)
		corsError(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, previews)
}

// handleGetPreview returns a single preview record.
func (s *Server) handleGetPreview(w http.ResponseWriter, r *http.Request) {
	p, err := s.service.GetPreview(r.PathValue("id"))
	if err != nil {
		corsError(w, "Preview not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// handleDeletePreview deletes a preview and its payload.
func (s *Server) handleDeletePreview(w http.ResponseWriter, r *http.Request) {
	if err := s.service.DeletePreview(r.PathValue("id")); err != nil {
		if errors.Is(err, ErrNotFound) {
			corsError(w, "Preview not found", http.StatusNotFound)
			return
		}
		corsError(w, "Error deleting preview", http.StatusInternalServerError)
		return
	}
	setCORSHeaders(w)
	w.WriteHeader(http.StatusNoContent)
}

// handleGetImage streams the stored payload for a preview.
func (s *Server) handleGetImage(w http.ResponseWriter, r *http.Request) {
	data, contentType, err := s.service.GetImage(r.PathValue("id"))
	if err != nil {
		corsError(w, "Image not found", http.StatusNotFound)
		return
	}
	setCORSHeaders(w)
	w.Header().Set("Content-Type", contentType)
	w.Write(data)
}

// handleDownload streams a preview image as an attachment.
func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	data, contentType, filename, err := s.service.Download(r.Context(), r.PathValue("id"))
	if err != nil {
		switch {
		case errors.Is(err, ErrNotFound), errors.Is(err, ErrNoStoredImage):
			corsError(w, "Preview not found", http.StatusNotFound)
		case errors.Is(err, ErrDownloadFailed):
			writeError(w, http.StatusBadGateway, "download", "Download failed")
		default:
			slog.Error("Error downloading preview", "id", r.PathValue("id"), "error", err)
			corsError(w, "Internal server error", http.StatusInternalServerError)
		}
		return
	}
	setCORSHeaders(w)
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	w.Write(data)
}

// handleCaption describes a stored preview image.
func (s *Server) handleCaption(w http.ResponseWriter, r *http.Request) {
	p, err := s.service.CaptionPreview(r.Context(), r.PathValue("id"))
	if err != nil {
		switch {
		case errors.Is(err, ErrCaptionDisabled):
			writeError(w, http.StatusServiceUnavailable, "caption_disabled", "Captioning is not configured")
		case errors.Is(err, ErrNotFound):
			corsError(w, "Preview not found", http.StatusNotFound)
		case errors.Is(err, ErrNoStoredImage):
			writeError(w, http.StatusUnprocessableEntity, "no_image", "Preview has no stored image")
		default:
			slog.Error("Error captioning preview", "id", r.PathValue("id"), "error", err)
			corsError(w, "Internal server error", http.StatusInternalServerError)
		}
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// handleListToasts returns the visible toast queue.
func (s *Server) handleListToasts(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.service.Toasts().List())
}

// handleDismissToast removes a toast before its timer fires.
func (s *Server) handleDismissToast(w http.ResponseWriter, r *http.Request) {
	s.service.Toasts().Dismiss(r.PathValue("id"))
	setCORSHeaders(w)
	w.WriteHeader(http.StatusNoContent)
}

// handleGetTheme reports the stored theme; empty means no explicit choice.
func (s *Server) handleGetTheme(w http.ResponseWriter, r *http.Request) {
	theme, err := s.service.Theme()
	if err != nil {
		slog.Error("Error reading theme", "error", err)
		corsError(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"theme": theme})
}

// handlePutTheme stores an explicit theme choice.
func (s *Server) handlePutTheme(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Theme string `json:"theme"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "Invalid request body")
		return
	}
	if err := s.service.SetTheme(req.Theme); err != nil {
		if errors.Is(err, ErrInvalidTheme) {
			writeError(w, http.StatusBadRequest, "invalid_theme", err.Error())
			return
		}
		slog.Error("Error saving theme", "error", err)
		corsError(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"theme": req.Theme})
}

// handleFavicon proxies {origin}/favicon.ico. Failures answer 204 so the
// page just hides the icon.
func (s *Server) handleFavicon(w http.ResponseWriter, r *http.Request) {
	rawURL := r.URL.Query().Get("url")
	data, contentType, err := s.service.Favicon(r.Context(), rawURL)
	if err != nil {
		setCORSHeaders(w)
		w.WriteHeader(http.StatusNoContent)
		return
	}
	setCORSHeaders(w)
	w.Header().Set("Content-Type", contentType)
	w.Write(data)
}
