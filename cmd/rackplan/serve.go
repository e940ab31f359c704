package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fentz26/rackplan/internal/controlplane"
	"github.com/spf13/cobra"
)

var listenAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve schedule lookups over HTTP",
	Long:  `Starts the control plane which answers action lookups for deployed robots from the recorded runs.`,
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().StringVar(&listenAddr, "listen", "127.0.0.1:7466", "Listen address for the API server")
}

func runServe(cmd *cobra.Command, args []string) error {
	log.Println("Starting rackplan control plane...")

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	l, err := openLedger(cfg.Ledger)
	if err != nil {
		return err
	}

	server := controlplane.NewServer(controlplane.NewService(l), listenAddr)

	// Set up signal handling for graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	// Channel to receive server errors
	serverErr := make(chan error, 1)

	go func() {
		if err := server.Start(); err != nil {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case sig := <-sigCh:
		log.Printf("Received signal %v, initiating graceful shutdown...", sig)
	case err := <-serverErr:
		if err != nil {
			log.Printf("Server error: %v", err)
			l.Close()
			return err
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	log.Println("Shutting down HTTP server...")
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("HTTP server shutdown error: %v", err)
	}

	log.Println("Closing ledger...")
	if err := l.Close(); err != nil {
		log.Printf("Ledger close error: %v", err)
	}

	log.Println("Shutdown complete")
	return nil
}
