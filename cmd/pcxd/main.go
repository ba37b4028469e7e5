package main

import (
	"context"
	"crypto/ed25519"
	"flag"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"pcode/pkg/config"
	"pcode/pkg/imagestore"
	"pcode/pkg/remote"
)

func main() {
	seed := flag.String("key-seed", "", "seed for the server's ed25519 key (random when empty)")
	timeout := flag.Duration("timeout", remote.DefaultTimeout, "longest a single program may run (0 for no limit)")
	clients := flag.String("clients", "", "comma-separated node names of the clients allowed to connect")
	anyClient := flag.Bool("allow-any-client", false, "accept connections from any client key")
	cfg, err := config.Parse(flag.CommandLine, os.Args[1:])
	if err != nil {
		log.Fatalf("Error: %v", err)
	}

	allowed, err := parseClients(*clients)
	if err != nil {
		log.Fatalf("Error: %v", err)
	}
	if allowed == nil && !*anyClient {
		log.Fatalf("Error: no -clients given; pass -allow-any-client to accept every key")
	}

	log.Printf("P-Code Execution Server")
	log.Printf("Image store: %s", cfg.DataPath)

	store, err := imagestore.Open(cfg.DataPath)
	if err != nil {
		log.Fatalf("Failed to open image store: %v", err)
	}
	defer store.Close()

	key := remote.KeyFromSeed(*seed)
	if *seed == "" {
		key = remote.RandomKey()
	}
	server, err := remote.NewServer(key)
	if err != nil {
		log.Fatalf("Failed to create server: %v", err)
	}
	opts, closeTrace, err := cfg.Options()
	if err != nil {
		log.Fatalf("Error: %v", err)
	}
	defer closeTrace()
	server.Store = store
	server.Options = opts
	server.Prepare = cfg.Apply
	server.Timeout = *timeout
	server.Clients = allowed

	if err := server.Listen(cfg.ListenAddr); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
	log.Printf("Server key: %s", remote.NodeName(server.PublicKey()))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if err := server.Serve(ctx); err != nil {
		log.Fatalf("Server failed: %v", err)
	}
	log.Println("Server shut down")
}

func parseClients(list string) ([]ed25519.PublicKey, error) {
	var keys []ed25519.PublicKey
	for _, name := range strings.Split(list, ",") {
		if name = strings.TrimSpace(name); name == "" {
			continue
		}
		pub, err := remote.ParseNodeName(name)
		if err != nil {
			return nil, err
		}
		keys = append(keys, pub)
	}
	return keys, nil
}
