package main

import (
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/packi/rvprobe/internal/hostdemo"
)

func newArmCmd() *cobra.Command {
	var textPath, blacklistPath string
	var verbose bool

	cmd := &cobra.Command{
		Use:   "arm <address>",
		Short: "Arm a probe at an address in a loaded text image",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			address, err := strconv.ParseUint(args[0], 0, 64)
			if err != nil {
				return fmt.Errorf("parsing address %q: %w", args[0], err)
			}

			host, err := openHost(textPath, blacklistPath, verbose)
			if err != nil {
				return err
			}
			probe, err := host.Arm(address)
			if err != nil {
				return err
			}
			cmd.Printf("armed %s at %#x: simulator=%s is_jump=%v restore=%#x\n",
				probe.ID, probe.Address, probe.Descriptor.Simulator, probe.Descriptor.IsJump, probe.Descriptor.RestoreAddress)
			return nil
		},
	}
	cmd.Flags().StringVar(&textPath, "text", "", "path to a text image (one hex word per line)")
	cmd.Flags().StringVar(&blacklistPath, "blacklist", "", "path to a TOML blacklist file")
	cmd.Flags().BoolVar(&verbose, "verbose", false, "enable debug logging")
	cmd.MarkFlagRequired("text")
	return cmd
}

func openHost(textPath, blacklistPath string, verbose bool) (*hostdemo.Host, error) {
	textFile, err := os.Open(textPath)
	if err != nil {
		return nil, fmt.Errorf("opening text image: %w", err)
	}
	defer textFile.Close()
	text, err := hostdemo.LoadText(textFile)
	if err != nil {
		return nil, fmt.Errorf("loading text image: %w", err)
	}

	var blacklist *hostdemo.Blacklist
	if blacklistPath != "" {
		blFile, err := os.Open(blacklistPath)
		if err != nil {
			return nil, fmt.Errorf("opening blacklist: %w", err)
		}
		defer blFile.Close()
		blacklist, err = hostdemo.LoadBlacklist(blFile)
		if err != nil {
			return nil, fmt.Errorf("loading blacklist: %w", err)
		}
	}

	return hostdemo.NewHost(text, blacklist, newLogger(verbose)), nil
}
