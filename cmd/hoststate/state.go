package main

import (
	"flag"
	"log/slog"
	"strings"
	"time"

	"github.com/davidahmann/hoststate/core/hostconfig"
	"github.com/davidahmann/hoststate/core/observer"
	"github.com/davidahmann/hoststate/core/scancache"
	"github.com/davidahmann/hoststate/core/stateman"
	"github.com/davidahmann/hoststate/core/statestore"
)

type commonFlags struct {
	statePath  string
	configPath string
	jsonOutput bool
}

func registerCommonFlags(flagSet *flag.FlagSet, flags *commonFlags) {
	flagSet.StringVar(&flags.statePath, "state", "", "state file path (default: from config, else ~/"+hostconfig.DefaultStateFileName+")")
	flagSet.StringVar(&flags.configPath, "config", "", "config file path (default: ~/"+hostconfig.DefaultConfigFileName+")")
	flagSet.BoolVar(&flags.jsonOutput, "json", false, "emit JSON output")
}

// buildManager assembles the manager from the effective configuration.
// Flags win over config values; a --config path that does not exist is an
// error, while a missing default config is not.
func buildManager(flags commonFlags) (*stateman.Manager, time.Duration, error) {
	configPath := strings.TrimSpace(flags.configPath)
	allowMissing := configPath == ""
	if configPath == "" {
		resolved, err := hostconfig.DefaultConfigPath()
		if err != nil {
			return nil, 0, err
		}
		configPath = resolved
	}
	configuration, err := hostconfig.Load(configPath, allowMissing)
	if err != nil {
		return nil, 0, err
	}

	statePath := strings.TrimSpace(flags.statePath)
	if statePath == "" {
		statePath, err = configuration.ResolveStatePath()
		if err != nil {
			return nil, 0, err
		}
	}
	lockTimeout, err := configuration.ResolveLockTimeout()
	if err != nil {
		return nil, 0, err
	}
	scanTimeout, err := configuration.ResolveScanTimeout()
	if err != nil {
		return nil, 0, err
	}
	ttls, err := configuration.ResolveTTLs()
	if err != nil {
		return nil, 0, err
	}

	store := statestore.New(statePath, statestore.WithLockTimeout(lockTimeout))
	cache := scancache.New(ttls)
	manager := stateman.New(store, cache, observer.NewLocal(""), stateman.WithLogger(slog.Default()))
	return manager, scanTimeout, nil
}
