// Package main Textbook RAG API Server
//
//	@title			Textbook RAG API
//	@version		1.0
//	@description	Conversational study-assistant backend: textbook content ingestion, retrieval, and grounded chat with citations
//
//	@host		localhost:8080
//	@BasePath	/
package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	_ "textbook-rag/docs" // swagger doc registration
	"textbook-rag/internal/config"
	"textbook-rag/internal/server"
)

func main() {
	log.Println("Starting RAG server...")

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	srv, cleanup, err := server.NewServer(cfg)
	if err != nil {
		log.Fatalf("Failed to build server: %v", err)
	}
	defer cleanup()

	go func() {
		log.Printf("Listening on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	log.Println("Shutting down...")
	ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Printf("Graceful shutdown failed: %v", err)
	}
	log.Println("Server stopped.")
}
