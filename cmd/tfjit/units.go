package main

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/spf13/cobra"

	"tfjit/internal/backend/placeholder"
	"tfjit/internal/config"
	"tfjit/internal/diag"
	"tfjit/internal/ir"
	"tfjit/internal/pipeline"
)

// unitExts are the file suffixes picked up when a directory is given.
var unitExts = []string{".toml", ".tfir"}

// collectUnitPaths expands directories into the unit files they hold.
func collectUnitPaths(args []string) ([]string, error) {
	var paths []string
	for _, arg := range args {
		info, err := os.Stat(arg)
		if err != nil {
			return nil, err
		}
		if !info.IsDir() {
			paths = append(paths, arg)
			continue
		}
		entries, err := os.ReadDir(arg)
		if err != nil {
			return nil, err
		}
		for _, e := range entries {
			if e.IsDir() || !slices.Contains(unitExts, strings.ToLower(filepath.Ext(e.Name()))) {
				continue
			}
			paths = append(paths, filepath.Join(arg, e.Name()))
		}
	}
	if len(paths) == 0 {
		return nil, fmt.Errorf("no units found in %v", args)
	}
	return paths, nil
}

// loadUnits decodes every unit file. Unreadable files are reported to r and
// skipped; structural problems are left to the pipeline so they surface per unit.
func loadUnits(args []string, r diag.Reporter) ([]*ir.Unit, error) {
	paths, err := collectUnitPaths(args)
	if err != nil {
		return nil, err
	}
	units := make([]*ir.Unit, 0, len(paths))
	seen := make(map[string]string, len(paths))
	for _, p := range paths {
		u, err := ir.Load(p)
		if err != nil {
			r.Report(diag.FromLoadError(p, err))
			continue
		}
		if prev, dup := seen[u.Name]; dup {
			return nil, fmt.Errorf("unit %q defined in both %s and %s", u.Name, prev, p)
		}
		seen[u.Name] = p
		units = append(units, u)
	}
	return units, nil
}

func loadConfig(cmd *cobra.Command) (config.Config, error) {
	path, err := cmd.Root().PersistentFlags().GetString("config")
	if err != nil {
		return config.Config{}, fmt.Errorf("failed to get config flag: %w", err)
	}
	return config.Resolve(path)
}

var backends = map[string]func() pipeline.Backend{
	"placeholder": func() pipeline.Backend { return placeholder.New() },
}

func backendByName(name string) (pipeline.Backend, error) {
	mk, ok := backends[name]
	if !ok {
		names := make([]string, 0, len(backends))
		for n := range backends {
			names = append(names, n)
		}
		slices.Sort(names)
		return nil, fmt.Errorf("unknown back end %q (available: %s)", name, strings.Join(names, ", "))
	}
	return mk(), nil
}
