// Package config loads the JSON configuration shared by the pcx commands.
package config

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"

	"pcode/pkg/image"
	"pcode/pkg/vm"
)

// Config represents the configuration loaded from the JSON file. Sizing
// fields override the values recorded in a program image when non-zero.
type Config struct {
	StrAlloc     uint16 `json:"str_alloc"`      // default string buffer capacity
	StrStackSize uint16 `json:"str_stack_size"` // bytes reserved for string temporaries
	StackSize    uint16 `json:"stack_size"`
	HeapSize     uint16 `json:"heap_size"`
	Coalesce     bool   `json:"coalesce"` // merge adjacent free heap chunks
	Sandbox      bool   `json:"sandbox"`  // deny host files and environment
	DataPath     string `json:"data_path"`
	ListenAddr   string `json:"listen_addr"`
	TraceFile    string `json:"trace_file"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		DataPath:   "./data",
		ListenAddr: "127.0.0.1:7474",
	}
}

// Load reads path over the defaults. An empty path yields the defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := json.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return cfg, nil
}

// RegisterFlags binds command-line overrides for every field to fs. Call it
// after Load so the loaded values become the flag defaults.
func (c *Config) RegisterFlags(fs *flag.FlagSet) {
	uintVar(fs, &c.StrAlloc, "str-alloc", "default string buffer capacity")
	uintVar(fs, &c.StrStackSize, "str-stack", "string stack size in bytes")
	uintVar(fs, &c.StackSize, "stack", "evaluation stack size in bytes")
	uintVar(fs, &c.HeapSize, "heap", "heap size in bytes")
	fs.BoolVar(&c.Coalesce, "coalesce", c.Coalesce, "merge adjacent free heap chunks on dispose")
	fs.BoolVar(&c.Sandbox, "sandbox", c.Sandbox, "deny programs access to host files and environment")
	fs.StringVar(&c.DataPath, "data-path", c.DataPath, "path to the image store")
	fs.StringVar(&c.ListenAddr, "listen", c.ListenAddr, "address of the remote execution service")
	fs.StringVar(&c.TraceFile, "trace", c.TraceFile, "write an instruction trace to this file")
}

// Parse registers -config and the field flags on fs and parses args.
// Values come from Default, then the -config file, then any flag given on
// the command line.
func Parse(fs *flag.FlagSet, args []string) (Config, error) {
	path := fs.String("config", "", "path to a JSON configuration file")
	cfg := Default()
	cfg.RegisterFlags(fs)
	if err := fs.Parse(args); err != nil {
		return cfg, err
	}
	if *path == "" {
		return cfg, nil
	}

	loaded, err := Load(*path)
	if err != nil {
		return cfg, err
	}
	overrides := flag.NewFlagSet(fs.Name(), flag.ContinueOnError)
	loaded.RegisterFlags(overrides)
	var setErr error
	fs.Visit(func(f *flag.Flag) {
		if overrides.Lookup(f.Name) != nil && setErr == nil {
			setErr = overrides.Set(f.Name, f.Value.String())
		}
	})
	return loaded, setErr
}

// Apply returns img with the configured sizing overrides.
func (c Config) Apply(img *image.Image) *image.Image {
	out := *img
	for _, o := range []struct {
		dst *uint16
		v   uint16
	}{
		{&out.StrAlloc, c.StrAlloc},
		{&out.StrStackSize, c.StrStackSize},
		{&out.StackSize, c.StackSize},
		{&out.HeapSize, c.HeapSize},
	} {
		if o.v != 0 {
			*o.dst = o.v
		}
	}
	return &out
}

// Options builds the machine options, opening the trace file if one is
// configured. On success the returned close function is never nil.
func (c Config) Options() (vm.Options, func() error, error) {
	opts := vm.Options{Coalesce: c.Coalesce, Sandbox: c.Sandbox}
	if c.TraceFile == "" {
		return opts, func() error { return nil }, nil
	}
	logger, err := vm.InitFileLogger(c.TraceFile)
	if err != nil {
		return opts, nil, fmt.Errorf("failed to open trace file: %w", err)
	}
	opts.Trace = logger
	return opts, logger.Writer().(io.Closer).Close, nil
}

type uint16Value struct{ p *uint16 }

func uintVar(fs *flag.FlagSet, p *uint16, name, usage string) {
	fs.Var(uint16Value{p}, name, usage)
}

func (v uint16Value) String() string {
	if v.p == nil {
		return "0"
	}
	return fmt.Sprint(*v.p)
}

func (v uint16Value) Set(s string) error {
	var n uint64
	if _, err := fmt.Sscan(s, &n); err != nil {
		return err
	}
	if n > 0xffff {
		return fmt.Errorf("%d does not fit in 16 bits", n)
	}
	*v.p = uint16(n)
	return nil
}
