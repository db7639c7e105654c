package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/OpenTraceLab/rbbsim/pkg/bsdl"
	"github.com/OpenTraceLab/rbbsim/pkg/jtag"
	"github.com/spf13/cobra"
)

var (
	connectAddr string
	scanCount   int
	scanTimeout time.Duration
	scanBSDLDir string
)

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Read the IDCODEs of a chain behind a remote-bitbang bridge",
	Long: `Connect to a remote-bitbang server as a client, reset the chain and read
one IDCODE per expected device.

With --bsdl, every IDCODE is matched against the BSDL files in that
directory.

Examples:
  rbb scan --count 1
  rbb scan --connect unix:/tmp/rbb.sock --count 2
  rbb scan --connect 127.0.0.1:9823 --count 2 --bsdl testdata`,
	RunE: runScan,
}

func init() {
	rootCmd.AddCommand(scanCmd)

	scanCmd.Flags().StringVarP(&connectAddr, "connect", "c", fmt.Sprintf("127.0.0.1:%d", jtag.DefaultRemoteBitbangPort),
		"server address: host:port, port, unix:/path or a path")
	scanCmd.Flags().IntVarP(&scanCount, "count", "n", 0,
		"expected number of devices in the chain")
	scanCmd.Flags().DurationVar(&scanTimeout, "timeout", 5*time.Second,
		"connection timeout")
	scanCmd.Flags().StringVarP(&scanBSDLDir, "bsdl", "b", "",
		"directory of BSDL files to match IDCODEs against")

	scanCmd.MarkFlagRequired("count")
}

func runScan(cmd *cobra.Command, args []string) error {
	if scanCount <= 0 {
		return fmt.Errorf("--count must be positive, got %d", scanCount)
	}

	repo := bsdl.NewRepository()
	if scanBSDLDir != "" {
		if err := repo.LoadDir(scanBSDLDir); err != nil {
			return fmt.Errorf("failed to load BSDL directory: %w", err)
		}
		logger.Debugf("loaded %d BSDL profile(s) from %s", repo.Len(), scanBSDLDir)
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), scanTimeout)
	defer cancel()
	logger.Debugf("connecting to %s", connectAddr)
	adapter, err := jtag.DialRemoteBitbang(ctx, connectAddr)
	if err != nil {
		return err
	}
	defer adapter.Close()

	ids, err := jtag.ReadIDCodes(adapter, scanCount)
	if err != nil {
		return fmt.Errorf("failed to read IDCODEs: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Found %d device(s)\n", len(ids))
	for i, raw := range ids {
		info := jtag.DecodeIDCode(raw)
		fmt.Fprintf(out, "  [%d] %s\n", i, info)
		if !info.Valid() {
			fmt.Fprintf(out, "      not a valid IDCODE (bit 0 clear): device may be in BYPASS\n")
			continue
		}
		if p, err := repo.Lookup(raw); err == nil {
			fmt.Fprintf(out, "      %s, IR Length: %d bits\n", p.Entity, p.InstructionLength)
		}
	}
	return nil
}
