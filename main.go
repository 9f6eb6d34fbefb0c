package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/charmbracelet/log"

	"github.com/vrsandeep/mylist-go/internal/api"
	"github.com/vrsandeep/mylist-go/internal/core"
	"github.com/vrsandeep/mylist-go/internal/jobs"
)

func main() {
	// Initialize the core application components
	app, err := core.New()
	if err != nil {
		log.Fatal("Fatal error during application setup", "err", err)
	}
	defer app.Close()

	go app.WsHub().Run()

	// Start the periodic refresh in the background
	if scheduler := jobs.StartJobs(app); scheduler != nil {
		defer scheduler.Stop()
	}

	// Setup the API server
	server := api.NewServer(app)
	httpServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", app.Config().Port),
		Handler: server.Router(),
	}

	// --- Graceful Shutdown ---
	go func() {
		log.Info("Starting web server", "addr", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("Could not start server", "err", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("Shutting down server...")

	// Allow existing connections to finish.
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(ctx); err != nil {
		log.Error("Server forced to shutdown", "err", err)
	}

	log.Info("Server exiting.")
}
