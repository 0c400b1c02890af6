package main

import (
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/joho/godotenv"

	"github.com/veldt/roomcast/internal/server"
)

const shutdownTimeout = 10 * time.Second

func main() {
	// Local .env is a dev convenience; absence is fine.
	_ = godotenv.Load()

	printBanner()

	config := server.NewConfigFromEnv()
	server.SetConfig(config)

	registry := server.NewRegistry()
	hub := server.NewHub(registry)
	go hub.Run()

	mux := server.SetupRoutes(hub)
	httpServer := server.CreateServer(config.Port, mux)

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.StartServer(httpServer)
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Server failed: %v", err)
		}
	case sig := <-stop:
		log.Printf("Received signal %s, shutting down...", sig)
	}

	if err := server.ShutdownServer(httpServer, shutdownTimeout); err != nil {
		log.Printf("HTTP shutdown error: %v", err)
	}
	if err := hub.Shutdown(shutdownTimeout); err != nil {
		log.Printf("Hub shutdown error: %v", err)
	}
}

func printBanner() {
	header := color.New(color.FgCyan, color.Bold)
	header.Println("roomcast - room-based presence and message relay")
	color.New(color.FgGreen).Println("Starting server...")
}
