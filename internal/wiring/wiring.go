// Package wiring builds the shared miner registry both cmd entrypoints
// (the API process and the standalone worker) construct identically,
// so the conditional-wiring rules for the browser/document/vendor and
// AI miners live in one place.
package wiring

import (
	"log/slog"
	"time"

	"contactminer/internal/aiclient"
	"contactminer/internal/config"
	"contactminer/internal/miners"
)

// BuildRegistry wires every miner the process can support given its
// configuration: the headless-browser-backed miners are registered
// only when Rod is enabled, and the AI miner only when an Anthropic
// API key is available, rather than failing startup for an unused
// optional collaborator.
func BuildRegistry(cfg *config.Config, logger *slog.Logger) *miners.Registry {
	httpTimeout := time.Duration(cfg.Analyzer.TimeoutMs) * time.Millisecond
	rodTimeout := time.Duration(cfg.Rod.TimeoutMs) * time.Millisecond

	ms := []miners.Miner{
		miners.NewHTTPBasicMiner(httpTimeout),
		miners.NewTableMiner(),
		miners.NewFileMiner(),
		miners.NewDirectoryMiner(),
	}

	if cfg.Rod.Enabled {
		ms = append(ms,
			miners.NewBrowserMiner(rodTimeout),
			miners.NewDocumentMiner(rodTimeout),
			miners.NewVendorCatalogMiner(rodTimeout),
		)
	}

	if cfg.Anthropic.APIKey != "" {
		client, err := aiclient.New(cfg.Anthropic, 60*time.Second)
		if err != nil {
			logger.Warn("ai miner disabled: client init failed", "error", err)
		} else {
			ms = append(ms, miners.NewAIMiner(client))
		}
	}

	return miners.NewRegistry(ms...)
}
