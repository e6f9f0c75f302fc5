package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/vineyard-analyzer/backend/internal/api"
	"github.com/vineyard-analyzer/backend/internal/cache"
	"github.com/vineyard-analyzer/backend/internal/config"
	"github.com/vineyard-analyzer/backend/internal/decoder"
	"github.com/vineyard-analyzer/backend/internal/ingest"
	"github.com/vineyard-analyzer/backend/internal/metrics"
	"github.com/vineyard-analyzer/backend/internal/session"
	"github.com/vineyard-analyzer/backend/internal/storage"
	"github.com/vineyard-analyzer/backend/internal/telemetry"
	"github.com/vineyard-analyzer/backend/internal/web"
)

// Version info (set during build)
var (
	Version   = "dev"
	BuildTime = "unknown"
)

// decoderAdapter narrows decoder.Runner to the ingest.Decoder interface.
type decoderAdapter struct {
	runner *decoder.Runner
}

func (d decoderAdapter) Decode(ctx context.Context, rawLogPath, outputPath string) error {
	_, err := d.runner.Decode(ctx, rawLogPath, outputPath)
	return err
}

func main() {
	// Get the executable's directory for config resolution
	exePath, err := os.Executable()
	if err != nil {
		fmt.Printf("Failed to get executable path: %v\n", err)
		os.Exit(1)
	}
	exeDir := filepath.Dir(exePath)

	// Load XML configuration
	configPath := filepath.Join(exeDir, "VineyardAnalyzer.config")
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		fmt.Printf("Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Ensure all data directories exist
	if err := cfg.EnsureDirectories(); err != nil {
		fmt.Printf("Failed to create directories: %v\n", err)
		os.Exit(1)
	}

	// Check if running in embedded mode (frontend built into binary)
	embeddedMode := web.HasEmbeddedFiles()

	// Initialize storage
	fileStore, err := storage.NewLocalStore(cfg.GetUploadDir())
	if err != nil {
		fmt.Printf("Failed to initialize storage: %v\n", err)
		os.Exit(1)
	}

	// Content-addressed decode cache
	parseCache, err := cache.New(cfg.GetCacheDir(), cfg.Decoder.MinCacheEntryBytes)
	if err != nil {
		fmt.Printf("Failed to initialize parse cache: %v\n", err)
		os.Exit(1)
	}

	// Column alias table, with optional YAML overrides
	aliases := telemetry.DefaultAliases()
	if cfg.Matching.ColumnAliasFile != "" {
		loaded, err := telemetry.LoadAliases(cfg.Matching.ColumnAliasFile)
		if err != nil {
			fmt.Printf("Warning: failed to load column aliases: %v\n", err)
		} else {
			aliases = loaded
		}
	}

	// Decoder binary; plain CSV logs ingest without one
	var dec ingest.Decoder
	if cfg.Decoder.BinaryPath != "" {
		dec = decoderAdapter{runner: decoder.NewRunner(decoder.Config{
			BinaryPath:     cfg.Decoder.BinaryPath,
			APIKey:         cfg.Decoder.APIKey,
			WatchdogWindow: time.Duration(cfg.Decoder.WatchdogWindowSeconds) * time.Second,
		})}
	} else {
		fmt.Println("No decoder binary configured, only decoded CSV logs can be ingested")
	}

	// Initialize ingestion manager
	ingestMgr := ingest.NewManager(fileStore, parseCache, dec, aliases)

	// Initialize annotation run manager
	runMgr := session.NewManager(ingestMgr, fileStore, session.RunOptions{
		GroupSize:   cfg.Matching.GroupSize,
		ToleranceMs: cfg.Matching.ToleranceMs,
	})

	// Start background cleanup
	go func() {
		ticker := time.NewTicker(time.Duration(cfg.Matching.CleanupIntervalMinutes) * time.Minute)
		defer ticker.Stop()
		maxAge := time.Duration(cfg.Matching.SessionTimeoutMinutes) * time.Minute
		for range ticker.C {
			runMgr.CleanupOldSessions(maxAge)
			ingestMgr.CleanupOldJobs(maxAge)
		}
	}()

	// Initialize API handlers
	deps := &api.Dependencies{
		Store:     fileStore,
		IngestMgr: ingestMgr,
		RunMgr:    runMgr,
		Aliases:   aliases,
		Version:   Version,
	}
	handlers := api.NewHandlers(deps)

	e := echo.New()
	e.HideBanner = true
	e.HTTPErrorHandler = api.ErrorHandler

	// Configure middleware
	e.Use(middleware.LoggerWithConfig(middleware.LoggerConfig{
		Skipper: func(c echo.Context) bool {
			if !cfg.Advanced.EnableRequestLogging {
				return true
			}
			path := c.Request().URL.Path
			return strings.HasSuffix(path, "/status") ||
				strings.HasSuffix(path, "/progress") ||
				path == "/health"
		},
	}))

	e.Use(middleware.RecoverWithConfig(middleware.RecoverConfig{
		StackSize:         1024 * 4,
		DisablePrintStack: false,
		LogLevel:          0,
	}))

	e.Use(middleware.TimeoutWithConfig(middleware.TimeoutConfig{
		Timeout: time.Duration(cfg.Server.ReadTimeout) * time.Second,
		Skipper: func(c echo.Context) bool {
			path := c.Request().URL.Path
			return strings.Contains(path, "/progress") ||
				strings.Contains(path, "/upload") ||
				strings.Contains(path, "/export") ||
				c.Request().Header.Get("Accept") == "text/event-stream"
		},
		ErrorMessage: "Request timeout",
	}))

	// Body limit middleware
	e.Use(middleware.BodyLimit(cfg.Server.BodyLimit))

	// CORS configuration
	if cfg.Server.EnableCORS {
		if embeddedMode {
			origins := strings.Split(cfg.Server.AllowOrigins, ",")
			for i := range origins {
				origins[i] = strings.TrimSpace(origins[i])
			}
			if len(origins) == 0 || (len(origins) == 1 && origins[0] == "") {
				origins = []string{"*"}
			}
			e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
				AllowOrigins: origins,
				AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
				AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderAuthorization},
			}))
		} else {
			// Development mode - only allow localhost
			e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
				AllowOrigins: []string{
					"http://localhost:5173", "http://127.0.0.1:5173",
					"http://localhost:3000", "http://127.0.0.1:3000",
				},
				AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
				AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept},
			}))
		}
	}

	// API routes
	api.RegisterRoutes(e, handlers)
	api.RegisterWebSocketRoutes(e, deps)

	// Prometheus metrics
	if cfg.Advanced.EnableMetrics {
		e.GET("/metrics", echo.WrapHandler(metrics.Handler()))
	}

	// Register embedded frontend if available
	if embeddedMode {
		if err := web.RegisterStaticRoutes(e); err != nil {
			fmt.Printf("Warning: failed to register static routes: %v\n", err)
		} else {
			fmt.Println("Serving embedded frontend from binary")
		}
	}

	// Configure server with settings from XML config
	s := &http.Server{
		Addr:         cfg.GetServerAddr(),
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		IdleTimeout:  time.Duration(cfg.Server.IdleTimeout) * time.Second,
	}

	// Print startup banner
	mode := "Development"
	if embeddedMode {
		mode = "Air-Gapped (Embedded)"
	}
	decoderState := "not configured"
	if dec != nil {
		decoderState = cfg.Decoder.BinaryPath
	}

	fmt.Printf("\n")
	fmt.Printf("╔═══════════════════════════════════════════════════════════╗\n")
	fmt.Printf("║           Vineyard Flight Annotator Server                ║\n")
	fmt.Printf("╠═══════════════════════════════════════════════════════════╣\n")
	fmt.Printf("║  Version:    %-45s║\n", Version)
	fmt.Printf("║  Build Time: %-45s║\n", BuildTime)
	fmt.Printf("║  Mode:       %-45s║\n", mode)
	fmt.Printf("╠═══════════════════════════════════════════════════════════╣\n")
	fmt.Printf("║  Config:    %-46s║\n", configPath)
	fmt.Printf("║  Listen:    http://%-38s║\n", cfg.GetServerAddr())
	fmt.Printf("║  Data Dir:  %-46s║\n", cfg.GetDataDir())
	fmt.Printf("║  Decoder:   %-46s║\n", decoderState)
	fmt.Printf("╚═══════════════════════════════════════════════════════════╝\n")
	fmt.Printf("\n")

	if embeddedMode {
		fmt.Printf("Open http://localhost:%d in your browser\n\n", cfg.Server.Port)
	}

	e.Logger.Fatal(e.StartServer(s))
}
