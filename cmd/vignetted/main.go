package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"

	"vignette/internal/config"
	"vignette/internal/daemonrun"
)

func main() {
	configPath := flag.String("config", "", "path to config file (defaults to the standard lookup)")
	logLevel := flag.String("log-level", "", "override configured log level")
	flag.Parse()

	cfg, path, exists, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	if notice := configNotice(path, exists); notice != "" {
		fmt.Fprintln(os.Stderr, notice)
	}

	if err := daemonrun.Run(context.Background(), cfg, daemonrun.Options{LogLevel: *logLevel}); err != nil {
		log.Fatalf("vignetted: %v", err)
	}
}

// configNotice reports when the daemon is running on built-in defaults
// because no config file was found. Load never writes a file.
func configNotice(path string, exists bool) string {
	if exists {
		return ""
	}
	return fmt.Sprintf("no configuration file at %s, using defaults", path)
}
