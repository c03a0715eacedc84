package main

import (
	"fmt"
	"os"
	"strconv"

	"github.com/databreach/virtual-dsm-lxc/internal/config"
	"github.com/databreach/virtual-dsm-lxc/internal/provision"
)

func loadConfig() (*config.Config, error) {
	path := configPath
	if path == "" {
		path = config.DefaultConfigPath
	}
	return config.Load(path)
}

// openRunner loads the config and wires a runner against the real pct
// backend and run store. The caller must Close the returned store.
func openRunner() (*provision.Runner, *provision.Store, *config.Config, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, nil, err
	}
	store, err := provision.NewStore(cfg.Store.Path)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("opening run store: %w", err)
	}
	runner := provision.NewRunner(cfg, provision.PctManager{}, store, os.Stdout)
	return runner, store, cfg, nil
}

func requireRoot() error {
	if os.Geteuid() != 0 {
		return fmt.Errorf("this command must be run as root")
	}
	return nil
}

func parseCTID(arg string) (int, error) {
	ctid, err := strconv.Atoi(arg)
	if err != nil || ctid <= 0 {
		return 0, fmt.Errorf("invalid container ID %q: must be a positive integer", arg)
	}
	return ctid, nil
}
