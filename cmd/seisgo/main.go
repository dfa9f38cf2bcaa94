package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "seisgo",
	Short: "Full-waveform inversion toolkit",
	Long: `seisgo evaluates seismic full-waveform-inversion objectives and
drives a bound-constrained spectral-projected-gradient optimizer over them.`,
	SilenceUsage: true,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
