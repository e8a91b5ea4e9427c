package commands

import (
	"fmt"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/studysync/studysync/internal/api"
	"github.com/studysync/studysync/internal/logger"
	"github.com/studysync/studysync/internal/session"
)

type Globals struct {
	Debug   bool
	Version string
}

// apiFlags is shared by every command that talks to the backend.
type apiFlags struct {
	Server     string `help:"Backend API URL" default:"https://api.studysync.app"`
	Config     string `help:"YAML/JSON client config file path"`
	SessionDir string `help:"Session directory (default: ~/.studysync)"`
	CacheDir   string `help:"HTTP cache directory for catalog reads (default: in-memory)"`
}

// build assembles the session store and API client from flags and the
// optional config file. Config file values take precedence over flags.
func (f *apiFlags) build(globals *Globals) (*api.Client, *session.FileStore, error) {
	return f.buildWith(globals, nil)
}

// buildCached is build with a caching transport, for catalog reads that
// tolerate slightly stale answers.
func (f *apiFlags) buildCached(globals *Globals) (*api.Client, *session.FileStore, error) {
	if f.Config != "" {
		if err := f.loadConfigFile(); err != nil {
			return nil, nil, fmt.Errorf("failed to load config file: %w", err)
		}
		f.Config = ""
	}

	httpClient := api.NewInMemoryCachingHTTPClient()
	if f.CacheDir != "" {
		httpClient = api.NewCachingHTTPClient(f.CacheDir)
	}

	return f.buildWith(globals, httpClient)
}

func (f *apiFlags) buildWith(globals *Globals, httpClient *http.Client) (*api.Client, *session.FileStore, error) {
	log.Logger = logger.Setup(globals.Debug)

	if f.Config != "" {
		if err := f.loadConfigFile(); err != nil {
			return nil, nil, fmt.Errorf("failed to load config file: %w", err)
		}
	}

	store, err := session.NewFileStore(f.SessionDir)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open session store: %w", err)
	}

	cfg := api.DefaultConfig()
	cfg.BaseURL = f.Server
	cfg.UserAgent = "studysync-cli/" + globals.Version
	cfg.DeviceID = store.DeviceID()
	cfg.HTTPClient = httpClient
	if globals.Debug {
		transport := http.DefaultTransport
		if httpClient != nil {
			transport = httpClient.Transport
		}
		cfg.HTTPClient = &http.Client{Transport: logger.NewHTTPRequests(log.Logger, transport)}
	}

	return api.New(cfg, store), store, nil
}

func formatPrice(price int64) string {
	if price == 0 {
		return "FREE"
	}
	return fmt.Sprintf("₹%d", price)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}
