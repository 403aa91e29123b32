// Package config loads command-line flags into a Config and, optionally,
// watches a JSON file for hot-reloadable overrides. Grounded on
// cmd/spawner/main.go's flag.StringVar/flag.DurationVar block and the
// Config shape main_test.go exercises.
package config

import (
	"flag"
	"time"
)

// Config holds everything the responder binary needs to start: where to
// listen for FastCGI traffic, the optional admin surface address, the
// per-read timeout, the connection cap, and an optional path to watch for
// hot-reloadable overrides.
type Config struct {
	ListenAddr  string
	AdminAddr   string
	ReadTimeout time.Duration
	MaxConns    int
	ConfigFile  string
}

// Load parses args (typically os.Args[1:]) into a Config, falling back to
// documented defaults for anything not set.
func Load(args []string) *Config {
	fs := flag.NewFlagSet("fcgi-responder", flag.ContinueOnError)
	cfg := &Config{}
	fs.StringVar(&cfg.ListenAddr, "listenAddr", "127.0.0.1:9000", "address to bind the FastCGI responder (localhost only)")
	fs.StringVar(&cfg.AdminAddr, "adminAddr", "", "optional address for the read-only admin HTTP surface; empty disables it")
	fs.DurationVar(&cfg.ReadTimeout, "readTimeout", 5000*time.Millisecond, "per-read timeout for the connection driver")
	fs.IntVar(&cfg.MaxConns, "maxConns", 256, "maximum simultaneous accepted connections (0 means unlimited)")
	fs.StringVar(&cfg.ConfigFile, "configFile", "", "optional JSON file to watch for hot-reloadable overrides")
	// Parsing errors (e.g. -h) are reported by the flag package itself.
	_ = fs.Parse(args)
	return cfg
}
