package main

import (
	"context"
	"crypto/ed25519"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"time"

	"pcode/pkg/config"
	"pcode/pkg/image"
	"pcode/pkg/remote"
)

func main() {
	name := flag.String("name", "", "run the image the server stores under this name")
	server := flag.String("server-key", "", "expected server key name as logged by pcxd (any key when empty)")
	stdinPath := flag.String("stdin", "", "file sent as the program's standard input (- for this process's stdin)")
	timeout := flag.Duration("timeout", time.Minute, "deadline for the whole request")
	seed := flag.String("key-seed", "", "seed for this client's ed25519 key (random when empty)")
	cfg, err := config.Parse(flag.CommandLine, os.Args[1:])
	if err != nil {
		log.Fatalf("Error: %v", err)
	}

	req := &remote.Request{Name: *name}
	if req.Name == "" {
		if flag.NArg() != 1 {
			log.Fatal("Error: an image file or -name is required")
		}
		data, err := os.ReadFile(flag.Arg(0))
		if err != nil {
			log.Fatalf("Failed to read image: %v", err)
		}
		if req.Image, err = image.Decode(data); err != nil {
			log.Fatalf("Failed to decode image: %v", err)
		}
	}
	switch *stdinPath {
	case "":
	case "-":
		req.Stdin, err = io.ReadAll(os.Stdin)
	default:
		req.Stdin, err = os.ReadFile(*stdinPath)
	}
	if err != nil {
		log.Fatalf("Failed to read input: %v", err)
	}

	var serverKey ed25519.PublicKey
	if *server != "" {
		if serverKey, err = remote.ParseNodeName(*server); err != nil {
			log.Fatalf("Error: %v", err)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()
	key := remote.KeyFromSeed(*seed)
	if *seed == "" {
		key = remote.RandomKey()
	}
	log.Printf("Client key: %s", remote.NodeName(key.Public().(ed25519.PublicKey)))
	client, err := remote.Dial(ctx, cfg.ListenAddr, key, serverKey)
	if err != nil {
		log.Fatalf("Failed to connect: %v", err)
	}
	defer client.Close()

	resp, err := client.Execute(ctx, req)
	if err != nil {
		log.Fatalf("Request failed: %v", err)
	}
	os.Stdout.Write(resp.Stdout)
	if err := resp.Err(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		client.Close()
		os.Exit(1)
	}
	fmt.Fprintf(os.Stderr, "exit code %d\n", resp.ExitCode)
}
