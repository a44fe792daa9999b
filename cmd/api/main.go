package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jdmedia/newsreel/internal/api"
	"github.com/jdmedia/newsreel/internal/config"
	"github.com/jdmedia/newsreel/internal/manifest"
	"github.com/jdmedia/newsreel/internal/models"
	"github.com/jdmedia/newsreel/internal/queue"
	"github.com/jdmedia/newsreel/internal/renderer"
	"github.com/jdmedia/newsreel/internal/services"
	"github.com/jdmedia/newsreel/internal/storage"
	"github.com/jdmedia/newsreel/internal/worker"
)

func main() {
	log.Println("Starting Newsreel API...")

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Connect to Redis queue
	q, err := queue.New(cfg.RedisURL)
	if err != nil {
		log.Fatalf("Failed to connect to queue: %v", err)
	}
	defer q.Close()
	log.Println("Connected to Redis queue")

	// Blob store mirror is optional; without it projects stay local only.
	var blob *storage.Client
	if cfg.BlobStoreURL != "" {
		blob = storage.New(cfg.BlobStoreURL, cfg.BlobStoreKey, cfg.BlobStoreBucket)
		log.Printf("Initialized blob store (bucket: %s)", cfg.BlobStoreBucket)
	} else {
		log.Println("No BLOB_STORE_URL set — outputs stay on local disk")
	}

	// Manifest store over the projects tree
	var mirror manifest.Mirror
	if blob != nil {
		mirror = blob
	}
	store := manifest.NewStore(cfg.ProjectsDir, mirror)

	// Voice catalog
	voices, err := services.LoadVoiceCatalog(cfg.VoicesFile)
	if err != nil {
		log.Fatalf("Failed to load voice catalog: %v", err)
	}

	// Worker wiring happens first so the API can report live render state.
	var w *worker.Worker
	var workerCancel context.CancelFunc
	if cfg.WorkerEnabled {
		log.Println("Worker enabled, starting background processing...")

		encoder := services.NewEncoder(services.NewExecutor())

		// TTS providers; payloads pick one by name
		synthesizers := map[string]services.Synthesizer{}
		if cfg.ElevenLabsKey != "" {
			synthesizers["elevenlabs"] = services.NewElevenLabsService(cfg.ElevenLabsKey)
			log.Println("TTS provider: ElevenLabs (model: eleven_flash_v2_5)")
		}
		if cfg.OpenAIKey != "" {
			synthesizers["openai"] = services.NewOpenAITTSService(cfg.OpenAIKey)
			log.Println("TTS provider: OpenAI")
		}

		assembler := renderer.NewAssembler(encoder, synthesizers)

		var uploader renderer.Uploader
		if blob != nil {
			uploader = blob
		}
		local := renderer.NewLocalProvider(assembler, encoder, uploader)

		providers := map[models.RendererType]renderer.Provider{}
		if cfg.ShotstackKey != "" {
			providers[models.RendererShotstack] = renderer.NewShotstackProvider(assembler, cfg.ShotstackKey, cfg.ShotstackHost, uploader)
			log.Println("Remote renderer: Shotstack enabled")
		} else {
			providers[models.RendererShotstack] = renderer.NewUnconfiguredProvider("shotstack", "SHOTSTACK_API_KEY is not set")
		}
		dispatcher := renderer.NewDispatcher(local, providers)

		profile := models.ProfileFor(cfg.RenderResolution, models.DefaultProfile())
		w = worker.New(q, store, dispatcher, profile)

		var workerCtx context.Context
		workerCtx, workerCancel = context.WithCancel(context.Background())
		go w.Start(workerCtx, cfg.RenderMaxWorkers)
	}

	// API handler; the worker reference may be nil (API-only deployment)
	var reporter api.StateReporter
	if w != nil {
		reporter = w
	}
	handler := api.NewHandler(store, q, voices, reporter)
	router := api.NewRouter(handler, api.RouterConfig{
		BackendAPIKey:      cfg.BackendAPIKey,
		CorsAllowedOrigins: cfg.CorsAllowedOrigins,
	})

	if cfg.BackendAPIKey != "" {
		log.Println("API key authentication enabled")
	} else {
		log.Println("WARNING: No BACKEND_API_KEY set — API is unprotected (dev mode)")
	}

	server := &http.Server{
		Addr:    ":" + cfg.APIPort,
		Handler: router,
	}

	go func() {
		log.Printf("API server listening on :%s", cfg.APIPort)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")

	if workerCancel != nil {
		workerCancel()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	log.Println("Server exited")
}
