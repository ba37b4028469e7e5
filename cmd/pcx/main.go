package main

import (
	"errors"
	"flag"
	"fmt"
	"log"
	"os"

	"pcode/pkg/config"
	"pcode/pkg/image"
	"pcode/pkg/imagestore"
	"pcode/pkg/vm"
)

func main() {
	os.Exit(pcx())
}

func pcx() int {
	name := flag.String("name", "", "run the image stored under this name")
	save := flag.String("save", "", "store the image file under this name instead of running it")
	list := flag.Bool("list", false, "list stored images and exit")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "usage: pcx [flags] [image.pcx]\n")
		flag.PrintDefaults()
	}
	cfg, err := config.Parse(flag.CommandLine, os.Args[1:])
	if err != nil {
		log.Fatalf("Error: %v", err)
	}

	var store *imagestore.Store
	if *name != "" || *save != "" || *list {
		if store, err = imagestore.Open(cfg.DataPath); err != nil {
			log.Fatalf("Failed to open image store: %v", err)
		}
		defer store.Close()
	}

	if *list {
		names, err := store.List()
		if err != nil {
			log.Fatalf("Failed to list images: %v", err)
		}
		for _, n := range names {
			fmt.Println(n)
		}
		return 0
	}

	var img *image.Image
	switch {
	case *name != "":
		if img, err = store.Get(*name); err != nil {
			log.Fatalf("Failed to load image: %v", err)
		}
	case flag.NArg() == 1:
		if img, err = readImage(flag.Arg(0)); err != nil {
			log.Fatalf("Failed to load image: %v", err)
		}
	default:
		flag.Usage()
		return 2
	}

	if *save != "" {
		if err := store.Put(*save, img); err != nil {
			log.Fatalf("Failed to store image: %v", err)
		}
		log.Printf("Stored %s (%d bytes of code)", *save, len(img.Code))
		return 0
	}
	return run(cfg, img)
}

func readImage(path string) (*image.Image, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	img, err := image.Decode(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return img, nil
}

// run executes img on the process's standard streams and returns the
// process exit status.
func run(cfg config.Config, img *image.Image) int {
	opts, closeTrace, err := cfg.Options()
	if err != nil {
		log.Printf("Error: %v", err)
		return 1
	}
	defer closeTrace()
	opts.Stdin = os.Stdin
	opts.Stdout = os.Stdout

	code, err := vm.Execute(cfg.Apply(img), opts)
	var fault *vm.Fault
	switch {
	case errors.As(err, &fault):
		fmt.Fprintln(os.Stderr, fault)
		return 128 + int(fault.Reason)
	case err != nil:
		log.Printf("Error: %v", err)
		return 1
	}
	fmt.Fprintf(os.Stderr, "exit code %d\n", code)
	return int(uint8(code))
}
