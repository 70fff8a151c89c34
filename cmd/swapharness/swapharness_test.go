//go:build !unit

package main

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/comit-network/swapharness/internal/config"
	"github.com/comit-network/swapharness/internal/logger"
	"github.com/comit-network/swapharness/internal/scenario"
	"github.com/stretchr/testify/require"
)

// Runs every scenario of the library against live daemons configured in
// the data dir given by SWAPHARNESS_DATADIR.
func TestLive(t *testing.T) {
	dataDir := os.Getenv("SWAPHARNESS_DATADIR")
	if dataDir == "" {
		t.Skip("SWAPHARNESS_DATADIR is not set")
	}
	logger.Init(logger.Options{Level: "debug"})

	for name := range scenario.Library {
		t.Run(name, func(t *testing.T) {
			cfg, err := config.LoadConfig(dataDir, []string{"--scenario.name", name})
			require.NoError(t, err)

			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
			defer cancel()
			require.NoError(t, run(ctx, cfg))
		})
	}
}
