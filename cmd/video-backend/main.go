// Command video-backend serves uploaded videos, the per-second frame metadata
// extracted from them, and the browser player.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/augmedia/augplayer/client"
	"github.com/augmedia/augplayer/internal/api"
	"github.com/augmedia/augplayer/internal/config"
	"github.com/augmedia/augplayer/internal/extract"
	"github.com/augmedia/augplayer/internal/gst"
	"github.com/augmedia/augplayer/internal/log"
	"github.com/augmedia/augplayer/internal/processing"
	"github.com/augmedia/augplayer/internal/store"
)

func main() {
	cfg, err := config.LoadBackend()
	if err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}
	log.Setup(os.Stderr, cfg.LogLevel)

	log.Printf("Initializing GStreamer")
	gst.Init()

	st, err := store.NewOS(cfg.MediaStoragePath)
	if err != nil {
		log.Fatalf("Unable to open media storage: %v", err)
	}

	extractor := extract.New()
	if err := extractor.Check(); err != nil {
		log.Fatalf("Unable to extract metadata: %v", err)
	}

	queue := processing.NewQueue(st, extractor, processing.Options{
		Workers:   cfg.ProcessingWorkers,
		QueueSize: cfg.ProcessingQueue,
		Timeout:   cfg.ProcessingTimeout,
		Retention: processing.DefaultOptions.Retention,
	})
	defer queue.Close()

	srv := &http.Server{
		Addr: cfg.Addr(),
		Handler: api.NewHandler(api.Options{
			Store:         st,
			Queue:         queue,
			MaxUploadSize: cfg.MaxUploadSize,
			Client:        client.Build,
		}),
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		log.Printf("Video Backend listening on http://%s (storage %s, uploads up to %s)",
			srv.Addr, cfg.MediaStoragePath, humanize.Bytes(uint64(cfg.MaxUploadSize)))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		log.Printf("Shutting down")
	case err := <-errCh:
		log.Errorf("Server failed: %v", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Errorf("Graceful shutdown failed: %v", err)
	}
}
