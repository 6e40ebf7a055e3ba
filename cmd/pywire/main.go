package main

import (
	"fmt"
	"log"
	"net/http"
	"os"
	"runtime/debug"

	"github.com/pywire/pywire"
	"github.com/pywire/pywire/config"
)

var version = "dev"

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	command, args := os.Args[1], os.Args[2:]

	var err error
	switch command {
	case "serve":
		err = serve(args)
	case "version", "--version", "-v":
		printVersion()
		return
	case "help", "--help", "-h":
		printUsage()
		return
	default:
		fmt.Printf("Unknown command: %s\n\n", command)
		printUsage()
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func serve(args []string) error {
	cfg, err := buildServeConfig(args)
	if err != nil {
		return err
	}

	engine, err := pywire.New(cfg)
	if err != nil {
		return fmt.Errorf("starting engine: %w", err)
	}
	defer engine.Close()

	log.Printf("pywire serving %s on %s (dev=%v)", cfg.PagesDir, cfg.Addr, cfg.Dev)
	return http.ListenAndServe(cfg.Addr, engine)
}

// buildServeConfig resolves the project config for `pywire serve [dir]
// [flags]`, loading pywire.yaml from the target project directory and then
// applying any command-line overrides on top of it.
func buildServeConfig(args []string) (*config.Config, error) {
	projectDir := "."
	if len(args) > 0 && args[0] != "" && args[0][0] != '-' {
		projectDir = args[0]
		args = args[1:]
	}

	cfg, err := config.FindAndLoad(projectDir)
	if err != nil {
		return nil, fmt.Errorf("loading project config: %w", err)
	}

	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "--addr":
			if i+1 < len(args) {
				cfg.Addr = args[i+1]
				i++
			}
		case "--dev":
			cfg.Dev = true
		case "--pages":
			if i+1 < len(args) {
				cfg.PagesDir = args[i+1]
				i++
			}
		}
	}

	return cfg, nil
}

func printVersion() {
	fmt.Printf("pywire version %s\n", version)
	if info, ok := debug.ReadBuildInfo(); ok {
		fmt.Printf("go: %s\n", info.GoVersion)
	}
}

func printUsage() {
	fmt.Println("pywire - server-driven reactive web framework")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  pywire serve [dir] [--addr :8080] [--pages pages] [--dev]   Start the server")
	fmt.Println("  pywire version                                              Show version information")
	fmt.Println()
	fmt.Println("Examples:")
	fmt.Println("  pywire serve")
	fmt.Println("  pywire serve . --dev")
	fmt.Println("  pywire serve ./myapp --addr :3000")
}
