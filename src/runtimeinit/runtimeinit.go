// Package runtimeinit builds the components shared by the editor and the
// CLI from configuration.
package runtimeinit

import (
	"fmt"
	"log"
	"net/http"

	"circle-thumb/src/clipboard"
	"circle-thumb/src/compositor"
	"circle-thumb/src/config"
	"circle-thumb/src/session"
	"circle-thumb/src/source"
	"circle-thumb/src/store"
	"circle-thumb/src/worker"
)

type Options struct {
	LoadOptions  config.LoadOptions
	SetupLogging func(enableFileLogging bool)
	// AllowRemoteStore persists through SERVER_URL when it is set.
	AllowRemoteStore bool
	InitClipboard    bool
	// Workers sizes the export pool; <=0 means one worker.
	Workers int
}

// Runtime is the wired set of shared components.
type Runtime struct {
	Config     *config.Config
	Compositor *compositor.Compositor
	Store      store.Persister
	Pool       *worker.Pool
	Fetcher    *source.Fetcher
	Background compositor.Background
}

func Bootstrap(opts Options) (*Runtime, error) {
	cfg, err := config.LoadWithOptions(opts.LoadOptions)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	if opts.SetupLogging != nil {
		opts.SetupLogging(cfg.EnableFileLogging)
	}

	persister, err := newStore(cfg, opts.AllowRemoteStore)
	if err != nil {
		return nil, err
	}

	if opts.InitClipboard {
		if err := clipboard.Init(); err != nil {
			// Copy reports the failure when used; the rest of the editor works.
			log.Printf("Clipboard unavailable: %v", err)
		}
	}

	workers := opts.Workers
	if workers <= 0 {
		workers = 1
	}

	source.SetMaxPixels(cfg.MaxImagePixels())

	rt := &Runtime{
		Config:     cfg,
		Compositor: compositor.New(cfg.ResampleFilter),
		Store:      persister,
		Pool:       worker.New(workers),
		Fetcher:    source.NewFetcher(cfg.FetchTimeout(), cfg.MaxUploadBytes()),
		Background: compositor.ParseBackground(cfg.DefaultBackground),
	}
	log.Printf("Runtime: filter=%s background=%s on_conflict=%s", cfg.ResampleFilter, rt.Background, cfg.OnConflict)
	return rt, nil
}

func newStore(cfg *config.Config, allowRemote bool) (store.Persister, error) {
	if allowRemote && cfg.ServerURL != "" {
		log.Printf("Runtime: saving thumbnails through %s", cfg.ServerURL)
		rs := store.NewRemoteStore(cfg.ServerURL)
		rs.HTTP = &http.Client{Timeout: cfg.ExportDeadline()}
		return rs, nil
	}
	fs, err := store.NewFileStore(cfg.ThumbnailsDir, store.ParseConflictPolicy(cfg.OnConflict))
	if err != nil {
		return nil, fmt.Errorf("failed to prepare thumbnails directory: %w", err)
	}
	log.Printf("Runtime: saving thumbnails to %s", fs.Dir())
	return fs, nil
}

// Exporter returns an exporter over the runtime's components.
func (r *Runtime) Exporter() *session.Exporter {
	return &session.Exporter{
		Compositor: r.Compositor,
		Pool:       r.Pool,
		Persister:  r.Store,
		Deadline:   r.Config.ExportDeadline(),
	}
}

// Close stops the worker pool.
func (r *Runtime) Close() {
	if r.Pool != nil {
		r.Pool.Close()
	}
}
