package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/packi/rvprobe/pkg/rvdecode"
	"github.com/packi/rvprobe/pkg/rvprobe"
)

func newDecodeCmd() *cobra.Command {
	var address uint64

	cmd := &cobra.Command{
		Use:   "decode <word>",
		Short: "Classify a single 16- or 32-bit instruction word",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			value, err := strconv.ParseUint(args[0], 0, 32)
			if err != nil {
				return fmt.Errorf("parsing word %q: %w", args[0], err)
			}
			d, err := rvdecode.Decode(address, uint32(value))
			if err != nil {
				return err
			}
			cmd.Println(rvprobe.DescriptorString(d))
			return nil
		},
	}
	cmd.Flags().Uint64Var(&address, "address", 0, "probe address to assume (affects restore_address)")
	return cmd
}
