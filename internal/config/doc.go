// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package config provides unified configuration loading and management for clerk.
//
// Supports both TOML and JSON configuration formats, with sensible defaults,
// environment variable overrides, and validation.
//
// # Key Types
//
//   - Config: Main configuration structure with all settings
//   - AssistantConfig: Backend endpoint, credential, and model settings
//   - StorageConfig: Thread persistence and search index settings
//   - Watcher: Debounced hot reload of the config file
//
// # Configuration Precedence
//
// Configuration is loaded from (in order of precedence):
//   - Environment variables (CLERK_*)
//   - ~/.clerk/config.toml
//   - ~/.clerk/config.json
//   - Built-in defaults
//
// # Usage
//
// Load configuration:
//
//	cfg, err := config.Load()
//	if err != nil {
//	    log.Fatal(err)
//	}
//
// Access settings:
//
//	model := cfg.Assistant.Model
//	dir := cfg.Storage.Dir
package config
