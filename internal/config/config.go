// Package config loads one node's configuration from flags and an
// optional .env file, the way the teacher's cmd/server loads its own
// flags — generalized from the KV store's id/addr/data-dir/peers set to
// this system's store_id/root/home/cache_size plus the REST and
// WebSocket front-end listen addresses.
//
// .env loading follows the pattern the sibling example repos
// (Eggwite-Tether, orbas1-Synnergy) use joho/godotenv for: load it if
// present, ignore ErrNotExist, fail loudly on a malformed file.
package config

import (
	"flag"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

// Config is one store node's configuration.
type Config struct {
	StoreID   string
	Root      string
	Home      string
	CacheSize int

	RESTAddr string
	WSAddr   string

	LogLevel string
	EnvFile  string
}

// Load parses flags (and, if present, an .env file) into a Config.
// args should be os.Args[1:]; Load does not call flag.Parse() on the
// package-level FlagSet, so it is safe to call from tests.
func Load(args []string) (*Config, error) {
	fs := flag.NewFlagSet("dstore", flag.ContinueOnError)

	cfg := &Config{}
	fs.StringVar(&cfg.StoreID, "store-id", "", "unique store identifier (required)")
	fs.StringVar(&cfg.Root, "root", "", "URI prefix defining the federation partition (required)")
	fs.StringVar(&cfg.Home, "home", "", "URI prefix this store owns; must have root as a prefix (required)")
	fs.IntVar(&cfg.CacheSize, "cache-size", 1024, "maximum number of cached (non-home) entries")
	fs.StringVar(&cfg.RESTAddr, "rest-addr", ":8080", "REST front-end listen address")
	fs.StringVar(&cfg.WSAddr, "ws-addr", ":8081", "WebSocket front-end listen address")
	fs.StringVar(&cfg.LogLevel, "log-level", "info", "log level: trace, debug, info, warn, error")
	fs.StringVar(&cfg.EnvFile, "env-file", ".env", "optional .env file to load before flag parsing")

	// A first pass just to pick up -env-file before godotenv runs, so
	// env-sourced defaults are visible to the real flag values below.
	preScan := flag.NewFlagSet("dstore-prescan", flag.ContinueOnError)
	preScan.Usage = func() {}
	envFile := preScan.String("env-file", ".env", "")
	preScan.SetOutput(discard{})
	_ = preScan.Parse(args)

	if err := loadEnvFile(*envFile); err != nil {
		return nil, fmt.Errorf("config: loading env file %q: %w", *envFile, err)
	}

	applyEnvDefaults(cfg)

	if err := fs.Parse(args); err != nil {
		return nil, fmt.Errorf("config: parsing flags: %w", err)
	}

	if cfg.StoreID == "" {
		return nil, fmt.Errorf("config: -store-id is required")
	}
	if cfg.Root == "" {
		return nil, fmt.Errorf("config: -root is required")
	}
	if cfg.Home == "" {
		return nil, fmt.Errorf("config: -home is required")
	}

	return cfg, nil
}

func loadEnvFile(path string) error {
	if path == "" {
		return nil
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}
	return godotenv.Load(path)
}

// applyEnvDefaults lets DSTORE_* environment variables (typically
// populated by the .env file just loaded) seed the flag defaults, so a
// flag explicitly passed on the command line still wins.
func applyEnvDefaults(cfg *Config) {
	if v := os.Getenv("DSTORE_STORE_ID"); v != "" {
		cfg.StoreID = v
	}
	if v := os.Getenv("DSTORE_ROOT"); v != "" {
		cfg.Root = v
	}
	if v := os.Getenv("DSTORE_HOME"); v != "" {
		cfg.Home = v
	}
	if v := os.Getenv("DSTORE_REST_ADDR"); v != "" {
		cfg.RESTAddr = v
	}
	if v := os.Getenv("DSTORE_WS_ADDR"); v != "" {
		cfg.WSAddr = v
	}
	if v := os.Getenv("DSTORE_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
}

type discard struct{}

func (discard) Write(p []byte) (int, error) { return len(p), nil }

// NewLogger builds the shared *logrus.Logger every package threads
// through its constructor, the way the teacher threads *store.Store
// through NewReplicator/NewHandler.
func NewLogger(level string) (*logrus.Logger, error) {
	log := logrus.New()
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("config: invalid log level %q: %w", level, err)
	}
	log.SetLevel(lvl)
	return log, nil
}
