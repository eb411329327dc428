// Command server runs the ChatGenius realtime messaging hub.
package main

import (
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/Rishab-Kumar09/ChatGenius/internal/auth"
	"github.com/Rishab-Kumar09/ChatGenius/internal/server"
	"github.com/Rishab-Kumar09/ChatGenius/internal/store"
)

const version = "1.0.0"

const shutdownTimeout = 10 * time.Second

func main() {
	root := &cobra.Command{
		Use:   "chatgenius-server",
		Short: "ChatGenius realtime messaging hub",
	}

	var configPath string
	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the hub and serve WebSocket and HTTP traffic",
		RunE: func(_ *cobra.Command, _ []string) error {
			return serve(configPath)
		},
	}
	serveCmd.Flags().StringVarP(&configPath, "config", "c", "", "path to YAML config file")

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Print the server version",
		Run: func(_ *cobra.Command, _ []string) {
			fmt.Println(version)
		},
	}

	root.AddCommand(serveCmd, versionCmd)
	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func serve(configPath string) error {
	cfg, err := server.LoadConfig(configPath)
	if err != nil {
		return err
	}

	st, closeStore, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	authSvc := auth.NewService(cfg.AuthSecret, 24*time.Hour)
	if authSvc.Insecure() {
		log.Println("WARNING: no auth secret configured; trusting user query parameter")
	}

	srv := server.NewServer(cfg, st, authSvc)
	srv.StartHub()

	httpServer := server.CreateServer(cfg.Addr, srv.Routes())

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.StartServer(httpServer)
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			return err
		}
	case sig := <-stop:
		log.Printf("Received %s, shutting down", sig)
	}

	if err := server.ShutdownServer(httpServer, shutdownTimeout); err != nil {
		log.Printf("HTTP shutdown: %v", err)
	}
	if err := srv.Hub().Shutdown(shutdownTimeout); err != nil {
		log.Printf("Hub shutdown: %v", err)
	}
	return nil
}

// openStore selects SQLite when a path is configured, otherwise the
// volatile in-memory store.
func openStore(cfg server.Config) (store.Store, func(), error) {
	if cfg.StorePath == "" {
		log.Println("Using in-memory message store (messages are lost on restart)")
		return store.NewMemory(), func() {}, nil
	}

	st, err := store.OpenSQLite(cfg.StorePath)
	if err != nil {
		return nil, nil, err
	}
	log.Printf("Using SQLite message store at %s", cfg.StorePath)
	return st, func() {
		if err := st.Close(); err != nil {
			log.Printf("Closing store: %v", err)
		}
	}, nil
}
