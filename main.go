// clerk - a storefront assistant for the terminal.
//
// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later
package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/morganforge/clerk/internal/assistant"
	"github.com/morganforge/clerk/internal/config"
	"github.com/morganforge/clerk/internal/engine"
	"github.com/morganforge/clerk/internal/session"
	"github.com/morganforge/clerk/internal/storage"
	"github.com/morganforge/clerk/internal/ui/chat"
)

// Version information (set at build time)
var (
	Version   = "0.3.0"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

func main() {
	var (
		showVersion = flag.Bool("version", false, "print version and exit")
		configPath  = flag.String("config", "", "path to a config file (TOML or JSON)")
	)
	flag.Parse()

	if *showVersion {
		fmt.Printf("clerk %s (%s, built %s)\n", Version, GitCommit, BuildDate)
		return
	}

	if err := run(*configPath); err != nil {
		fmt.Fprintf(os.Stderr, "clerk: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}

	store, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer store.Flush()

	client := assistant.NewClient(cfg.Assistant.Endpoint, cfg.Assistant.APIKey).
		WithModel(cfg.Assistant.Model).
		WithMaxRetries(cfg.Assistant.MaxRetries)

	eng := engine.New(store, client, cfg.Stream.MaxUpdatesPerSecond)

	sess := session.NewManager(session.DefaultConfig())
	sess.SetAutoSaveCallback(store.Flush)

	p := tea.NewProgram(
		chat.New(cfg, store, eng, sess),
		tea.WithAltScreen(),
	)

	watcher := watchConfig(configPath, p)
	if watcher != nil {
		defer watcher.Close()
	}

	_, err = p.Run()
	return err
}

// loadConfig resolves configuration from an explicit path or the default
// lookup chain. A missing or broken config is not fatal; defaults plus
// environment overrides keep the program usable.
func loadConfig(path string) (*config.Config, error) {
	if err := config.EnsureConfigDir(); err != nil {
		return nil, fmt.Errorf("config dir: %w", err)
	}

	if path != "" {
		cfg, err := config.LoadFromPath(path)
		if err != nil {
			return nil, fmt.Errorf("load config %s: %w", path, err)
		}
		config.SetGlobal(cfg)
		return cfg, nil
	}

	cfg, err := config.Load()
	if err != nil {
		cfg = config.Default()
		cfg.ApplyEnvOverrides()
		cfg.SetDefaults()
	}
	config.SetGlobal(cfg)
	return cfg, nil
}

// openStore opens the thread store and, when enabled, its search index.
func openStore(cfg *config.Config) (*storage.Store, error) {
	dir := cfg.Storage.Dir
	if dir == "" {
		d, err := config.DefaultStorageDir()
		if err != nil {
			return nil, fmt.Errorf("storage dir: %w", err)
		}
		dir = d
	}

	store, err := storage.Open(dir, cfg.Storage.MaxThreads)
	if err != nil {
		return nil, fmt.Errorf("open storage: %w", err)
	}
	store.SetSystemPrompt(cfg.Assistant.SystemPrompt)

	if cfg.Storage.SearchIndex {
		ix, err := storage.OpenIndex(filepath.Join(dir, "index.db"))
		if err == nil {
			store.AttachIndex(ix)
		}
		// Search falls back to a linear scan without the index.
	}
	return store, nil
}

// watchConfig hot-reloads the config file into the running program.
// Returns nil when watching is not possible; the program runs fine
// without it.
func watchConfig(explicitPath string, p *tea.Program) *config.Watcher {
	path := explicitPath
	if path == "" {
		tomlPath, err := config.ConfigPathTOML()
		if err != nil {
			return nil
		}
		path = tomlPath
	}
	if _, err := os.Stat(path); err != nil {
		return nil
	}

	w, err := config.NewWatcher(path, config.DefaultWatchDebounce, func(cfg *config.Config) {
		config.SetGlobal(cfg)
		p.Send(chat.ConfigReloadedMsg{Config: cfg})
	})
	if err != nil {
		return nil
	}
	if err := w.Watch(); err != nil {
		w.Close()
		return nil
	}
	return w
}
