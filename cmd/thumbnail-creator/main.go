package main

import (
	_ "embed"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/peterbourgon/ff/v4"
	"github.com/peterbourgon/ff/v4/ffhelp"
	"github.com/teDdyMucho/tumbnail-creator/internal/caption"
	"github.com/teDdyMucho/tumbnail-creator/internal/preview"
	"github.com/teDdyMucho/tumbnail-creator/internal/webhook"
)

//go:embed VERSION.txt
var versionFile string

var version = strings.TrimSpace(versionFile)

func main() {
	// Check for version flag before parsing other flags
	for _, arg := range os.Args[1:] {
		if arg == "--version" || arg == "-version" || arg == "-v" {
			fmt.Println(version)
			os.Exit(0)
		}
	}

	fs := ff.NewFlagSet("thumbnail-creator")
	var (
		port          = fs.IntLong("port", 8080, "HTTP server port")
		dbPath        = fs.StringLong("db", "thumbnail-creator.db", "Database file path")
		storagePath   = fs.StringLong("storage", "./previews", "Storage directory path")
		webhookURL    = fs.StringLong("webhook-url", "", "Webhook endpoint that renders page previews (required)")
		captionerType = fs.StringLong("captioner", "gemini", "Captioner type: 'gemini', 'ollama' or 'off'")
		geminiKey     = fs.StringLong("gemini-key", "", "Google Gemini API key for captioning (or set GEMINI_API_KEY env var)")
		geminiModel   = fs.StringLong("gemini-model", "gemini-2.5-pro", "Google Gemini model name")
		ollamaURL     = fs.StringLong("ollama-url", "http://localhost:11434", "Ollama API base URL")
		ollamaModel   = fs.StringLong("ollama-model", "llava", "Ollama model name (e.g., llava, llava-phi3, bakllava)")
		authUser      = fs.StringLong("auth-user", "", "Basic auth username (optional)")
		authPass      = fs.StringLong("auth-pass", "", "Basic auth password (optional)")
		showVersion   = fs.BoolLong("version", "Show version information")
	)

	if err := ff.Parse(fs, os.Args[1:],
		ff.WithEnvVarPrefix("THUMBNAIL_CREATOR"),
	); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", ffhelp.Flags(fs))
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	// Check version flag after parsing
	if *showVersion {
		fmt.Println(version)
		os.Exit(0)
	}

	if *webhookURL == "" {
		slog.Error("Webhook URL is required. Set --webhook-url flag or THUMBNAIL_CREATOR_WEBHOOK_URL environment variable")
		os.Exit(1)
	}

	// Initialize database
	slog.Info("Initializing database...")
	db, err := preview.NewBoltDB(*dbPath)
	if err != nil {
		slog.Error("Failed to initialize database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	// Initialize storage
	slog.Info("Initializing storage...")
	store, err := preview.NewDiskStore(*storagePath)
	if err != nil {
		slog.Error("Failed to initialize storage", "error", err)
		os.Exit(1)
	}

	// Captioning is optional; without a captioner the endpoint reports unavailable.
	var captioner caption.Captioner
	switch *captionerType {
	case "gemini":
		// Get Gemini API key from flag or environment
		apiKey := *geminiKey
		if apiKey == "" {
			apiKey = os.Getenv("GEMINI_API_KEY")
		}
		if apiKey != "" {
			slog.Info("Initializing Gemini captioner...", "model", *geminiModel)
			captioner, err = caption.NewGemini(apiKey, *geminiModel)
			if err != nil {
				slog.Error("Failed to initialize Gemini", "error", err)
				os.Exit(1)
			}
			defer captioner.Close()
		} else {
			slog.Info("No Gemini API key configured, captioning disabled")
		}
	case "ollama":
		slog.Info("Initializing Ollama captioner...", "url", *ollamaURL, "model", *ollamaModel)
		captioner, err = caption.NewOllama(*ollamaURL, *ollamaModel)
		if err != nil {
			slog.Error("Failed to initialize Ollama", "error", err)
			os.Exit(1)
		}
		defer captioner.Close()
	case "off":
		slog.Info("Captioning disabled")
	default:
		slog.Error("Invalid captioner type", "type", *captionerType, "valid", "gemini, ollama or off")
		os.Exit(1)
	}

	hook := webhook.NewClient(*webhookURL)
	toasts := preview.NewToaster(preview.DefaultToastTTL)

	// Initialize service
	previewService := preview.NewService(db, hook, store, captioner, toasts)

	// Initialize server
	basicAuth := preview.BasicAuth{
		Username: *authUser,
		Password: *authPass,
	}
	server := preview.NewServer(previewService, basicAuth)

	// Start server in goroutine
	addr := fmt.Sprintf(":%d", *port)
	go func() {
		if err := server.Start(addr); err != nil {
			slog.Error("Server error", "error", err)
			os.Exit(1)
		}
	}()

	slog.Info("Server started", "address", fmt.Sprintf("http://localhost%s", addr), "webhook", *webhookURL)
	if *authUser != "" || *authPass != "" {
		slog.Info("Basic auth enabled", "user", *authUser)
	}

	// Wait for interrupt signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	slog.Info("Shutting down...")
}
