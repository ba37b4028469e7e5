package config

import (
	"flag"
	"os"
	"path/filepath"
	"testing"

	"pcode/pkg/image"

	"github.com/google/go-cmp/cmp"
)

func TestLoadOverDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pcx.json")
	if err := os.WriteFile(path, []byte(`{"heap_size": 2048, "coalesce": true, "data_path": "/srv/images"}`), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	want := Default()
	want.HeapSize = 2048
	want.Coalesce = true
	want.DataPath = "/srv/images"
	if diff := cmp.Diff(want, cfg); diff != "" {
		t.Errorf("config mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadErrors(t *testing.T) {
	dir := t.TempDir()
	bad := filepath.Join(dir, "bad.json")
	if err := os.WriteFile(bad, []byte(`{"heap_size": "large"}`), 0o644); err != nil {
		t.Fatal(err)
	}
	for _, path := range []string{filepath.Join(dir, "missing.json"), bad} {
		if _, err := Load(path); err == nil {
			t.Errorf("Load(%s) succeeded", path)
		}
	}
	if cfg, err := Load(""); err != nil || cfg != Default() {
		t.Errorf("Load(\"\") = %+v, %v; want defaults", cfg, err)
	}
}

func TestFlagsOverrideFile(t *testing.T) {
	cfg := Default()
	cfg.StackSize = 512
	fs := flag.NewFlagSet("pcx", flag.ContinueOnError)
	cfg.RegisterFlags(fs)
	if err := fs.Parse([]string{"-heap", "4096", "-coalesce", "-trace", "run.log"}); err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg.HeapSize != 4096 || !cfg.Coalesce || cfg.TraceFile != "run.log" {
		t.Errorf("flags not applied: %+v", cfg)
	}
	if cfg.StackSize != 512 {
		t.Errorf("StackSize = %d, want the loaded 512", cfg.StackSize)
	}
	if err := fs.Parse([]string{"-heap", "70000"}); err == nil {
		t.Errorf("heap size above 16 bits accepted")
	}
}

func TestApply(t *testing.T) {
	img := &image.Image{Code: []byte{0}, StrAlloc: 40, HeapSize: 100}
	got := Config{HeapSize: 1024, StackSize: 256}.Apply(img)
	want := &image.Image{Code: []byte{0}, StrAlloc: 40, HeapSize: 1024, StackSize: 256}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Apply mismatch (-want +got):\n%s", diff)
	}
	if img.HeapSize != 100 {
		t.Errorf("Apply modified its argument")
	}
}

func TestParseLayersFileAndFlags(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pcx.json")
	if err := os.WriteFile(path, []byte(`{"heap_size": 2048, "stack_size": 1024, "listen_addr": "0.0.0.0:9000"}`), 0o644); err != nil {
		t.Fatal(err)
	}
	fs := flag.NewFlagSet("pcxd", flag.ContinueOnError)
	timeout := fs.Duration("timeout", 0, "")
	cfg, err := Parse(fs, []string{"-config", path, "-heap", "4096", "-timeout", "2s"})
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	want := Default()
	want.HeapSize = 4096
	want.StackSize = 1024
	want.ListenAddr = "0.0.0.0:9000"
	if diff := cmp.Diff(want, cfg); diff != "" {
		t.Errorf("config mismatch (-want +got):\n%s", diff)
	}
	if timeout.String() != "2s" {
		t.Errorf("caller flag = %v, want 2s", *timeout)
	}
}

func TestOptionsCarrySandbox(t *testing.T) {
	cfg := Default()
	fs := flag.NewFlagSet("pcx", flag.ContinueOnError)
	cfg.RegisterFlags(fs)
	if err := fs.Parse([]string{"-sandbox"}); err != nil {
		t.Fatalf("Parse: %v", err)
	}
	opts, closeTrace, err := cfg.Options()
	if err != nil {
		t.Fatalf("Options: %v", err)
	}
	defer closeTrace()
	if !opts.Sandbox {
		t.Errorf("Options().Sandbox = false after -sandbox")
	}
}
