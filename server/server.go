package server

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"TrackForge/config"
	"TrackForge/core/engine"
	"TrackForge/core/mix"
	"TrackForge/db"
	"TrackForge/logger"
	"TrackForge/repository"
	"TrackForge/storage"

	"github.com/gorilla/mux"
)

// Start initializes and starts the HTTP server.
func Start() {
	cfg := config.Load()

	logger.InitLogger(logger.Config{
		Level:      logger.LogLevel(cfg.LogLevel),
		OutputPath: cfg.LogPath,
		MaxSize:    100,
		MaxBackups: 3,
		MaxAge:     28,
		Compress:   true,
	})

	server := &http.Server{
		Addr:         cfg.ServerAddr,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	if err := storage.InitMinio(cfg); err != nil {
		logger.Fatal("Failed to initialize MinIO", logger.ErrorField(err))
	}

	if err := db.ConnectDB(cfg); err != nil {
		logger.Fatal("Failed to connect to database", logger.ErrorField(err))
	}
	defer db.DB.Close()

	if err := db.ConnectGormDB(cfg); err != nil {
		logger.Fatal("Failed to connect to database with GORM", logger.ErrorField(err))
	}
	defer db.CloseGormDB()

	if err := db.ConnectRedis(cfg); err != nil {
		logger.Fatal("Failed to connect to Redis", logger.ErrorField(err))
	}
	defer db.CloseRedis()
	logger.Info("Successfully connected to Redis")

	if err := db.InitDB(); err != nil {
		logger.Fatal("Failed to initialize database", logger.ErrorField(err))
	}

	if err := os.MkdirAll(cfg.EngineWorkDir, 0755); err != nil {
		logger.Fatal("Failed to create engine work directory", logger.ErrorField(err))
	}

	trackRepo := repository.NewMySQLTrackRepository()
	versionRepo := repository.NewGormVersionRepository(db.GormDB)
	blobStore := storage.NewMinioBlobStore(cfg.MinioBucket)
	audioEngine := engine.NewProcessorEngine(cfg.PythonPath, cfg.ProcessorScript, cfg.AnalyzerScript)
	hub := mix.NewEventHub()
	sidecars := mix.NewSidecarWatcher(blobStore, runtime.NumCPU())
	coordinator := mix.NewCoordinator(trackRepo, versionRepo, audioEngine, blobStore, hub, sidecars, cfg.EngineWorkDir)

	apiHandler := NewAPIHandler(trackRepo, versionRepo, coordinator, blobStore, hub, cfg)

	router := mux.NewRouter()

	// CORS middleware
	router.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", "*")
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS, HEAD")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, X-Owner-ID, Range")
			w.Header().Set("Access-Control-Max-Age", "86400")

			if r.Method == "OPTIONS" {
				w.WriteHeader(http.StatusOK)
				return
			}

			next.ServeHTTP(w, r)
		})
	})

	apiHandler.RegisterRoutes(router)

	server.Handler = router

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	go func() {
		logger.Info("Server starting", logger.String("addr", cfg.ServerAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed to start server", logger.ErrorField(err))
		}
	}()

	<-stop
	logger.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Fatal("Server forced to shutdown", logger.ErrorField(err))
	}

	// In-flight generations have no cancel path; let them commit.
	coordinator.Wait()

	logger.Info("Server stopped")
}
