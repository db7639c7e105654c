package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/OpenTraceLab/rbbsim/pkg/bsdl"
	"github.com/OpenTraceLab/rbbsim/pkg/rbb"
	"github.com/OpenTraceLab/rbbsim/pkg/target"
	"github.com/spf13/cobra"
)

const (
	defaultIDCode   = 0x20000913
	defaultIRLength = 5
)

var (
	listenAddr    string
	serveIDCodes  []string
	serveIRLens   []int
	serveBSDL     []string
	refillPolicy  string
	stallTimeout  time.Duration
	idleSleep     time.Duration
	maxCycles     uint64
	statsInterval time.Duration
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve a simulated JTAG chain over remote bitbang",
	Long: `Open a remote-bitbang listener and drive a simulated TAP chain from it,
one command per simulation cycle.

Devices are listed from TDO to TDI. Each --idcode adds a device; --irlen is
either given once for all of them or once per device. Each --bsdl adds a
device described by a BSDL file, after the --idcode devices.

Examples:
  # One RISC-V style TAP on the default port
  rbb serve

  # ARM DAP followed by a 5-bit TAP, Unix socket, stall while the client is busy
  rbb serve --listen unix:/tmp/rbb.sock --idcode 0x4BA00477 --irlen 4 \
      --idcode 0x20000913 --irlen 5 --refill stall

  # Device from a BSDL file, stop after ten million cycles
  rbb serve --bsdl cpu.bsd --cycles 10000000`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVarP(&listenAddr, "listen", "l", rbb.DefaultEndpoint,
		"listen address: [host:]port, unix:/path or a path")
	serveCmd.Flags().StringSliceVar(&serveIDCodes, "idcode", nil,
		"IDCODE of a simulated device (hex, repeatable)")
	serveCmd.Flags().IntSliceVar(&serveIRLens, "irlen", nil,
		"instruction register length (once, or once per --idcode)")
	serveCmd.Flags().StringSliceVarP(&serveBSDL, "bsdl", "b", nil,
		"BSDL file describing a simulated device (repeatable)")
	serveCmd.Flags().StringVar(&refillPolicy, "refill", "yield",
		"what a cycle does when no command is buffered: yield or stall")
	serveCmd.Flags().DurationVar(&stallTimeout, "stall-timeout", rbb.DefaultStallTimeout,
		"longest wait for client data per cycle with --refill stall")
	serveCmd.Flags().DurationVar(&idleSleep, "idle-sleep", time.Millisecond,
		"sleep per cycle while no client is connected (0 spins)")
	serveCmd.Flags().Uint64Var(&maxCycles, "cycles", 0,
		"stop after this many cycles (0 runs until interrupted)")
	serveCmd.Flags().DurationVar(&statsInterval, "stats-interval", 10*time.Second,
		"how often to log bridge statistics at debug level (0 disables)")
}

func runServe(cmd *cobra.Command, args []string) error {
	chain, err := buildChain()
	if err != nil {
		return err
	}

	policy, err := rbb.ParseRefillPolicy(refillPolicy)
	if err != nil {
		return err
	}
	cfg := rbb.DefaultConfig()
	cfg.Endpoint = listenAddr
	cfg.Refill = policy
	cfg.StallTimeout = stallTimeout
	cfg.Logger = logger

	bridge, err := rbb.Open(cfg)
	if err != nil {
		return fmt.Errorf("failed to open bridge: %w", err)
	}
	defer bridge.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Infof("serving %d device(s) on %s", chain.Len(), bridge.Addr())
	cycles, err := simulate(ctx, bridge, chain)
	stats := bridge.Stats()
	logger.Infof("stopped after %d cycles: %d client(s), %d commands, %d readbacks",
		cycles, stats.Accepts, stats.Commands, stats.Readbacks)
	if err != nil {
		logger.Errorf("bridge failed: %v", err)
		return err
	}
	return nil
}

// simulate is the per-cycle loop a simulator would run around the bridge.
func simulate(ctx context.Context, bridge *rbb.Bridge, chain *target.Chain) (uint64, error) {
	var cycles uint64
	lastStats := time.Now()
	for maxCycles == 0 || cycles < maxCycles {
		if ctx.Err() != nil {
			break
		}
		pins, err := bridge.Tick(chain.TDO())
		if err != nil {
			return cycles, err
		}
		chain.Apply(pins)
		cycles++

		if !bridge.Connected() && idleSleep > 0 {
			time.Sleep(idleSleep)
		}
		if statsInterval > 0 && time.Since(lastStats) >= statsInterval {
			lastStats = time.Now()
			s := bridge.Stats()
			logger.Debugf("cycle %d: state=%s commands=%d reads=%d empty=%d writes=%d tck edges=%d",
				cycles, chain.State(), s.Commands, s.Reads, s.EmptyReads, s.Writes, chain.Edges())
		}
	}
	return cycles, nil
}

func buildChain() (*target.Chain, error) {
	var devices []target.Device

	idcodes, irlens := serveIDCodes, serveIRLens
	if len(idcodes) == 0 && len(serveBSDL) == 0 {
		idcodes = []string{strconv.FormatUint(defaultIDCode, 16)}
	}
	if len(irlens) == 0 {
		irlens = []int{defaultIRLength}
	}
	if len(idcodes) > 0 && len(irlens) != 1 && len(irlens) != len(idcodes) {
		return nil, fmt.Errorf("--irlen count (%d) must be 1 or match --idcode count (%d)",
			len(irlens), len(idcodes))
	}
	for i, s := range idcodes {
		id, err := parseHex32(s)
		if err != nil {
			return nil, fmt.Errorf("invalid --idcode %q: %w", s, err)
		}
		irlen := irlens[0]
		if len(irlens) > 1 {
			irlen = irlens[i]
		}
		devices = append(devices, target.Device{
			Name:     fmt.Sprintf("tap%d", i),
			IDCode:   uint32(id),
			IRLength: irlen,
		})
	}

	for _, path := range serveBSDL {
		prof, err := bsdl.LoadProfileFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to load %s: %w", path, err)
		}
		dev, err := target.DeviceFromProfile(prof)
		if err != nil {
			return nil, err
		}
		logger.Debugf("loaded %s from %s: IR %d bits, IDCODE 0x%08X", dev.Name, path, dev.IRLength, dev.IDCode)
		devices = append(devices, dev)
	}
	return target.NewChain(devices...)
}

func parseHex32(s string) (uint64, error) {
	return strconv.ParseUint(trimHexPrefix(s), 16, 32)
}

func trimHexPrefix(s string) string {
	if len(s) > 2 && s[0] == '0' && (s[1] == 'x' || s[1] == 'X') {
		return s[2:]
	}
	return s
}
