package cmd

import (
	"fmt"
	"os"

	"github.com/OpenTraceLab/rbbsim/internal/logging"
	"github.com/spf13/cobra"
)

var (
	// Global flags
	verbose  bool
	logLevel string

	logger = logging.Default()
)

var rootCmd = &cobra.Command{
	Use:   "rbb",
	Short: "JTAG remote-bitbang bridge and simulated TAP chain",
	Long: `rbb exposes a simulated JTAG chain on a remote-bitbang socket so OpenOCD
(or any other remote_bitbang client) can debug it, and scans chains through
such a socket.

Examples:
  rbb serve --listen 127.0.0.1:9823 --idcode 0x20000913 --irlen 5
  rbb serve --listen unix:/tmp/rbb.sock --bsdl cpu.bsd --refill stall
  rbb scan --connect 127.0.0.1:9823 --count 1
  rbb parse cpu.bsd`,
	Version:           "0.9.0",
	SilenceUsage:      true,
	PersistentPreRunE: setupLogging,
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output (same as --log-level debug)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level: debug, info, warn, error")
}

func setupLogging(cmd *cobra.Command, args []string) error {
	level, err := logging.ParseLevel(logLevel)
	if err != nil {
		return err
	}
	if verbose {
		level = logging.LevelDebug
	}
	logger = logging.New(cmd.ErrOrStderr(), level)
	return nil
}
