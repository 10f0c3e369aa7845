package preview

import (
	"encoding/base64"
	"log/slog"
	"net/http"
	"strings"
)

// Server handles HTTP requests for previews.
type Server struct {
	service   *Service
	basicAuth BasicAuth
	mux       *http.ServeMux
}

// BasicAuth holds basic authentication credentials.
type BasicAuth struct {
	Username string
	Password string
}

// NewServer creates a new Server with a default mux.
func NewServer(service *Service, basicAuth BasicAuth) *Server {
	return NewServerWithMux(service, basicAuth, http.NewServeMux())
}

// NewServerWithMux creates a new Server with a custom mux for testing.
func NewServerWithMux(service *Service, basicAuth BasicAuth, mux *http.ServeMux) *Server {
	s := &Server{
		service:   service,
		basicAuth: basicAuth,
		mux:       mux,
	}
	s.registerRoutes()
	return s
}

// authenticate checks basic auth credentials.
func (s *Server) authenticate(r *http.Request) bool {
	if s.basicAuth.Username == "" && s.basicAuth.Password == "" {
		return true // No auth required if not configured
	}

	auth := r.Header.Get("Authorization")
	if !strings.HasPrefix(auth, "Basic ") {
		return false
	}

	decoded, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(auth, "Basic "))
	if err != nil {
		return false
	}

	username, password, ok := strings.Cut(string(decoded), ":")
	if !ok {
		return false
	}
	return username == s.basicAuth.Username && password == s.basicAuth.Password
}

// corsMiddleware adds CORS headers and answers preflight requests.
func (s *Server) corsMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		setCORSHeaders(w)
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next(w, r)
	}
}

// requireAuth middleware.
func (s *Server) requireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !s.authenticate(r) {
			setCORSHeaders(w)
			w.Header().Set("WWW-Authenticate", `Basic realm="Thumbnail Creator"`)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next(w, r)
	}
}

// registerRoutes registers all routes on the server's mux.
// Routes go from most specific to least specific to avoid conflicts.
func (s *Server) registerRoutes() {
	s.mux.HandleFunc("GET /static/app.css", s.requireAuth(s.handleStaticCSS))
	s.mux.HandleFunc("GET /static/app.js", s.requireAuth(s.handleStaticJS))

	s.mux.HandleFunc("GET /api/previews/current", s.requireAuth(s.handleCurrent))
	s.mux.HandleFunc("GET /api/previews/{id}/image", s.requireAuth(s.handleGetImage))
	s.mux.HandleFunc("GET /api/previews/{id}/download", s.requireAuth(s.handleDownload))
	s.mux.HandleFunc("POST /api/previews/{id}/caption", s.requireAuth(s.handleCaption))
	s.mux.HandleFunc("GET /api/previews/{id}", s.requireAuth(s.handleGetPreview))
	s.mux.HandleFunc("DELETE /api/previews/{id}", s.requireAuth(s.handleDeletePreview))
	s.mux.HandleFunc("GET /api/previews", s.requireAuth(s.handleListPreviews))
	s.mux.HandleFunc("POST /api/previews", s.requireAuth(s.handleSubmit))

	s.mux.HandleFunc("GET /api/toasts", s.requireAuth(s.handleListToasts))
	s.mux.HandleFunc("DELETE /api/toasts/{id}", s.requireAuth(s.handleDismissToast))

	s.mux.HandleFunc("GET /api/settings/theme", s.requireAuth(s.handleGetTheme))
	s.mux.HandleFunc("PUT /api/settings/theme", s.requireAuth(s.handlePutTheme))

	s.mux.HandleFunc("GET /api/favicon", s.requireAuth(s.handleFavicon))

	// The embedded page is the catch-all.
	s.mux.HandleFunc("GET /index.html", s.requireAuth(s.handleIndex))
	s.mux.HandleFunc("GET /", s.requireAuth(s.handleIndex))
}

// Start starts the HTTP server.
func (s *Server) Start(addr string) error {
	slog.Info("Starting server", "address", addr)
	return http.ListenAndServe(addr, s.corsMiddleware(s.mux.ServeHTTP))
}

// ServeHTTP implements http.Handler for testing.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}
