// Command rvprobe is the CLI front-end to this core: it can decode a single
// instruction word, or arm a probe (and optionally fire it once) against a
// small loaded text image, using internal/hostdemo as its host.
package main

import (
	"os"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"
)

func main() {
	root := newRootCmd()
	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rvprobe",
		Short: "Decode, arm and fire RISC-V kprobes against a text image",
	}
	cmd.AddCommand(newDecodeCmd())
	cmd.AddCommand(newArmCmd())
	cmd.AddCommand(newFireCmd())
	return cmd
}

func newLogger(verbose bool) *log.Logger {
	logger := log.New(os.Stderr)
	if verbose {
		logger.SetLevel(log.DebugLevel)
	}
	return logger
}
