package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/salonchat/salond/pkg/database"
	"github.com/salonchat/salond/pkg/server"
	"github.com/salonchat/salond/pkg/staging"
)

func main() {
	configPath := flag.String("config", "~/.salond/config.toml", "Path to config file")
	port := flag.Int("port", 0, "TCP port override")
	debug := flag.Bool("debug", false, "Enable debug logging")
	seedAdmin := flag.String("seed-admin", "", "Create an admin account as user:password and exit")
	flag.Parse()

	tomlConfig, err := server.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	config := tomlConfig.ToServerConfig()
	if *port != 0 {
		config.TCPPort = *port
	}

	dbPath, err := tomlConfig.GetDatabasePath()
	if err != nil {
		log.Fatalf("Failed to resolve database path: %v", err)
	}
	db, err := database.Open(dbPath)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer db.Close()

	if *seedAdmin != "" {
		if err := seedAdminUser(db, *seedAdmin); err != nil {
			log.Fatalf("Failed to seed admin: %v", err)
		}
		return
	}

	stagingRoot, err := tomlConfig.GetStagingRoot()
	if err != nil {
		log.Fatalf("Failed to resolve staging root: %v", err)
	}
	files, err := staging.NewStore(stagingRoot)
	if err != nil {
		log.Fatalf("Failed to create staging store: %v", err)
	}

	// Start from a clean staging tree, then recreate a directory for
	// every salon already in the store.
	if err := files.Clear(); err != nil {
		log.Fatalf("Failed to clear staging tree: %v", err)
	}
	salons, err := db.ListChannelNames()
	if err != nil {
		log.Fatalf("Failed to list salons: %v", err)
	}
	if err := files.EnsureAll(salons); err != nil {
		log.Fatalf("Failed to create salon directories: %v", err)
	}

	srv, err := server.NewServer(db, files, config)
	if err != nil {
		log.Fatalf("Failed to create server: %v", err)
	}
	if *debug {
		srv.EnableDebugLogging()
	}

	if err := srv.Start(); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	var consoleDone <-chan struct{}
	if config.AdminConsole {
		consoleDone = srv.RunAdminConsole(os.Stdin)
	}

	select {
	case sig := <-sigCh:
		log.Printf("Received signal %v, shutting down", sig)
		if err := srv.Stop(); err != nil {
			log.Printf("Shutdown error: %v", err)
		}
	case <-consoleDone:
		// Shut sequence already ran in the console goroutine
	}
}

// seedAdminUser creates an admin account from a "user:password" spec
func seedAdminUser(db *database.DB, spec string) error {
	username, password, ok := strings.Cut(spec, ":")
	if !ok || username == "" || password == "" {
		return fmt.Errorf("admin spec must be user:password")
	}

	if err := db.CreateUser(username, password, "admin"); err != nil {
		return err
	}
	log.Printf("Admin user %s created", username)
	return nil
}
