// Package config loads tfjit.toml: the target register file, the runtime
// object layout the lowering bakes into barrier checks, and build options.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// FileName is the config file looked up from the working directory upwards.
const FileName = "tfjit.toml"

// Target describes the register file and runtime layout of the target.
type Target struct {
	// RegisterParameterCount is the size of the register file used for call operands.
	RegisterParameterCount int `toml:"register_parameter_count"`
	RootRegister           int `toml:"root_register"`
	FPRegister             int `toml:"fp_register"`
	PointerSize            int `toml:"pointer_size"`

	PageSizeBits         uint `toml:"page_size_bits"`
	PageFlagsOffset      int  `toml:"page_flags_offset"`
	PointersFromHereMask int  `toml:"pointers_from_here_mask"`
	PointersToHereMask   int  `toml:"pointers_to_here_mask"`
	// CodeEntryOffset is added to a code object pointer to reach its first instruction.
	CodeEntryOffset int `toml:"code_entry_offset"`
}

// Build holds driver options.
type Build struct {
	Jobs    int    `toml:"jobs"`
	Backend string `toml:"backend"`
	Cache   bool   `toml:"cache"`
}

// Config is the decoded tfjit.toml.
type Config struct {
	Target Target `toml:"target"`
	Build  Build  `toml:"build"`
}

// DefaultTarget returns the ARM32 layout.
func DefaultTarget() Target {
	return Target{
		RegisterParameterCount: 12,
		RootRegister:           10,
		FPRegister:             11,
		PointerSize:            4,
		PageSizeBits:           19,
		PageFlagsOffset:        4,
		PointersFromHereMask:   1 << 2,
		PointersToHereMask:     1 << 1,
		CodeEntryOffset:        63,
	}
}

// Default returns the configuration used when no file exists.
func Default() Config {
	return Config{
		Target: DefaultTarget(),
		Build:  Build{Backend: "placeholder"},
	}
}

// PageMask clears the in-page bits of an address.
func (t *Target) PageMask() int32 {
	return int32(^uint32(0) << t.PageSizeBits) //nolint:gosec // two's complement mask
}

// Validate checks that the register layout is usable.
func (t *Target) Validate() error {
	var errs []error
	if t.RegisterParameterCount <= 0 || t.RegisterParameterCount > 16 {
		errs = append(errs, fmt.Errorf("register_parameter_count %d out of range 1..16", t.RegisterParameterCount))
	}
	for name, r := range map[string]int{"root_register": t.RootRegister, "fp_register": t.FPRegister} {
		if r < 0 || r >= t.RegisterParameterCount {
			errs = append(errs, fmt.Errorf("%s %d outside the register file", name, r))
		}
	}
	if t.RootRegister == t.FPRegister {
		errs = append(errs, errors.New("root_register and fp_register must differ"))
	}
	if t.PointerSize != 4 {
		errs = append(errs, fmt.Errorf("pointer_size %d is not supported", t.PointerSize))
	}
	if t.PageSizeBits == 0 || t.PageSizeBits >= 32 {
		errs = append(errs, fmt.Errorf("page_size_bits %d out of range", t.PageSizeBits))
	}
	return errors.Join(errs...)
}

// Find walks up from startDir looking for FileName.
func Find(startDir string) (string, bool, error) {
	if startDir == "" {
		startDir = "."
	}
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return "", false, fmt.Errorf("failed to resolve start directory: %w", err)
	}
	for {
		candidate := filepath.Join(dir, FileName)
		if _, err := os.Stat(candidate); err == nil {
			return candidate, true, nil
		} else if !errors.Is(err, os.ErrNotExist) {
			return "", false, fmt.Errorf("failed to stat %q: %w", candidate, err)
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return "", false, nil
}

// Load decodes path on top of the defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	meta, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return Config{}, fmt.Errorf("%s: failed to parse TOML: %w", path, err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return Config{}, fmt.Errorf("%s: unknown keys %v", path, undecoded)
	}
	if err := cfg.Target.Validate(); err != nil {
		return Config{}, fmt.Errorf("%s: %w", path, err)
	}
	if cfg.Build.Jobs < 0 {
		return Config{}, fmt.Errorf("%s: build.jobs must not be negative", path)
	}
	return cfg, nil
}

// Resolve loads an explicit path, or the nearest FileName, or the defaults.
func Resolve(explicit string) (Config, error) {
	if explicit != "" {
		return Load(explicit)
	}
	path, ok, err := Find(".")
	if err != nil {
		return Config{}, err
	}
	if !ok {
		return Default(), nil
	}
	return Load(path)
}
