package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
)

func main() {
	godotenv.Load()

	InitLogger()
	defer CloseLogger()

	settings, err := LoadSettings()
	if err != nil {
		LogError("Failed to load settings: %v", err)
		os.Exit(1)
	}

	if err := os.MkdirAll(settings.ConfigDir, 0o755); err != nil {
		LogError("Failed to create config directory: %v", err)
		os.Exit(1)
	}

	globalDB, err := OpenGlobalDatabase(settings.DatabaseDSN)
	if err != nil {
		LogError("Failed to open cache database: %v", err)
		os.Exit(1)
	}
	defer globalDB.Close()

	app := NewAppContext(settings, globalDB, NewConsoleInput())

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	// A bot configured to shut down after farming can end the process
	// once nothing else is running
	app.OnLastBotStopped = func() {
		LogInfo("All bots stopped, shutting down")
		select {
		case shutdown <- syscall.SIGTERM:
		default:
		}
	}

	if err := app.Registry.LoadAll(); err != nil {
		LogError("Failed to load bots: %v", err)
		os.Exit(1)
	}

	watcher, err := NewConfigWatcher(app)
	if err != nil {
		LogWarning("Config watcher unavailable: %v", err)
	} else {
		defer watcher.Close()
	}

	server := &http.Server{
		Addr:         ":" + settings.Port,
		Handler:      NewRouter(app),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
	}

	go func() {
		LogInfo("Admin API listening on port %s", settings.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			LogError("HTTP server failed: %v", err)
		}
	}()

	<-shutdown
	LogInfo("Shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	server.Shutdown(shutdownCtx)

	app.Shutdown()

	LogInfo("Goodbye")
}
