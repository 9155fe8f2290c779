package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/packi/rvprobe/pkg/rvregs"
)

func newFireCmd() *cobra.Command {
	var textPath, blacklistPath string
	var verbose bool
	var presets []string

	cmd := &cobra.Command{
		Use:   "fire <address>",
		Short: "Arm a probe, then simulate it firing once and print the resulting registers",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			addr, err := strconv.ParseUint(args[0], 0, 64)
			if err != nil {
				return fmt.Errorf("parsing address %q: %w", args[0], err)
			}

			host, err := openHost(textPath, blacklistPath, verbose)
			if err != nil {
				return err
			}
			if _, err := host.Arm(addr); err != nil {
				return err
			}

			regs := rvregs.NewSnapshot(addr)
			if err := applyPresets(regs, presets); err != nil {
				return err
			}

			d, err := host.Trap(regs)
			if err != nil {
				return err
			}
			cmd.Printf("fired simulator=%s resume_pc=%#x\n", d.Simulator, regs.PC())
			all := regs.All()
			for i, v := range all {
				if v != 0 {
					cmd.Printf("  x%d = %#x\n", i, v)
				}
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&textPath, "text", "", "path to a text image (one hex word per line)")
	cmd.Flags().StringVar(&blacklistPath, "blacklist", "", "path to a TOML blacklist file")
	cmd.Flags().BoolVar(&verbose, "verbose", false, "enable debug logging")
	cmd.Flags().StringArrayVar(&presets, "set", nil, "preset a register before firing, e.g. --set x10=5")
	cmd.MarkFlagRequired("text")
	return cmd
}

func applyPresets(regs *rvregs.Snapshot, presets []string) error {
	for _, p := range presets {
		name, value, ok := strings.Cut(p, "=")
		if !ok {
			return fmt.Errorf("invalid --set %q, want xN=value", p)
		}
		name = strings.TrimPrefix(name, "x")
		idx, err := strconv.ParseUint(name, 10, 32)
		if err != nil {
			return fmt.Errorf("invalid register in --set %q: %w", p, err)
		}
		v, err := strconv.ParseUint(value, 0, 64)
		if err != nil {
			return fmt.Errorf("invalid value in --set %q: %w", p, err)
		}
		regs.SetGPR(uint32(idx), v)
	}
	return nil
}
