package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"tfjit/internal/codegen"
	"tfjit/internal/diag"
	"tfjit/internal/ir"
	"tfjit/internal/pipeline"
	"tfjit/internal/stackmap"
)

var stackmapsCmd = &cobra.Command{
	Use:   "stackmaps [flags] UNIT | --section FILE",
	Short: "Compile a unit and dump its stack-map section",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runStackMaps,
}

var disasmCmd = &cobra.Command{
	Use:   "disasm [flags] UNIT|OBJECT.code",
	Short: "Disassemble a code object",
	Long: `Disassemble a code object written by "build --out", or compile a unit
and disassemble the result. Safepoints and relocations are annotated.`,
	Args: cobra.ExactArgs(1),
	RunE: runDisasm,
}

func init() {
	stackmapsCmd.Flags().String("section", "", "dump a raw stack-map section file instead")
	stackmapsCmd.Flags().String("backend", "", "native back end (default from config)")
	disasmCmd.Flags().String("backend", "", "native back end (default from config)")
	disasmCmd.Flags().Bool("native", false, "print the lowered native IR first")
}

// compileOne runs a single unit through the pipeline without the cache.
func compileOne(cmd *cobra.Command, path string) (*pipeline.Result, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	name := cfg.Build.Backend
	if cmd.Flags().Changed("backend") {
		if name, err = cmd.Flags().GetString("backend"); err != nil {
			return nil, fmt.Errorf("failed to get backend flag: %w", err)
		}
	}
	backend, err := backendByName(name)
	if err != nil {
		return nil, err
	}
	u, err := ir.Load(path)
	if err != nil {
		return nil, err
	}
	res, err := pipeline.CompileUnit(cmd.Context(), u, pipeline.Options{Target: cfg.Target, Backend: backend})
	if err != nil {
		bag := diag.NewBag(0)
		bag.Report(diag.FromError(u.Name, err))
		_ = diag.Render(cmd.ErrOrStderr(), bag) //nolint:errcheck // the error is returned below
		return nil, fmt.Errorf("compile %s failed", u.Name)
	}
	return res, nil
}

func runStackMaps(cmd *cobra.Command, args []string) error {
	cleanup, err := instrument(cmd)
	if err != nil {
		return err
	}
	defer cleanup()
	defer dumpOnPanic()

	section, err := cmd.Flags().GetString("section")
	if err != nil {
		return fmt.Errorf("failed to get section flag: %w", err)
	}
	var maps *stackmap.StackMaps
	switch {
	case section != "" && len(args) == 0:
		data, err := os.ReadFile(section)
		if err != nil {
			return err
		}
		if maps, err = stackmap.Parse(data); err != nil {
			return fmt.Errorf("%s: %w", section, err)
		}
	case section == "" && len(args) == 1:
		res, err := compileOne(cmd, args[0])
		if err != nil {
			return err
		}
		maps = res.StackMaps
	default:
		return errors.New("give either a unit or --section")
	}
	return maps.Dump(cmd.OutOrStdout())
}

func runDisasm(cmd *cobra.Command, args []string) error {
	cleanup, err := instrument(cmd)
	if err != nil {
		return err
	}
	defer cleanup()
	defer dumpOnPanic()

	showNative, err := cmd.Flags().GetBool("native")
	if err != nil {
		return fmt.Errorf("failed to get native flag: %w", err)
	}
	out := cmd.OutOrStdout()

	var obj *codegen.CodeObject
	if strings.EqualFold(filepath.Ext(args[0]), ".code") {
		if showNative {
			return errors.New("--native needs a unit, not a code object")
		}
		data, err := os.ReadFile(args[0])
		if err != nil {
			return err
		}
		if obj, err = codegen.DecodeCodeObject(data); err != nil {
			return fmt.Errorf("%s: %w", args[0], err)
		}
	} else {
		res, err := compileOne(cmd, args[0])
		if err != nil {
			return err
		}
		if showNative {
			fmt.Fprintln(out, res.Native.String())
		}
		obj = res.Object
	}
	fmt.Fprintf(out, "%s: %d bytes, %d stack slots\n", obj.Name, len(obj.Instructions), obj.StackSlots)
	return obj.Disassemble(out)
}
