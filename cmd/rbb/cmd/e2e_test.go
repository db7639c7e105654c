package cmd

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/OpenTraceLab/rbbsim/internal/logging"
	"github.com/OpenTraceLab/rbbsim/pkg/jtag"
	"github.com/OpenTraceLab/rbbsim/pkg/rbb"
	"github.com/OpenTraceLab/rbbsim/pkg/target"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// execute runs the root command with args and returns stdout and stderr.
// Flag globals, Changed marks and command contexts persist between Execute
// calls, so they are reset first.
func execute(ctx context.Context, args ...string) (string, string, error) {
	verbose = false
	logLevel = "info"
	listenAddr = rbb.DefaultEndpoint
	serveIDCodes = nil
	serveIRLens = nil
	serveBSDL = nil
	refillPolicy = "yield"
	stallTimeout = rbb.DefaultStallTimeout
	idleSleep = time.Millisecond
	maxCycles = 0
	statsInterval = 10 * time.Second
	connectAddr = "127.0.0.1:9823"
	scanCount = 0
	scanTimeout = 5 * time.Second
	scanBSDLDir = ""
	showPorts = false
	for _, c := range append([]*cobra.Command{rootCmd}, rootCmd.Commands()...) {
		c.Flags().VisitAll(func(f *pflag.Flag) { f.Changed = false })
		c.PersistentFlags().VisitAll(func(f *pflag.Flag) { f.Changed = false })
		// Cobra only hands the root context down to subcommands whose own
		// context is still nil.
		c.SetContext(ctx)
	}

	var stdout, stderr bytes.Buffer
	rootCmd.SetOut(&stdout)
	rootCmd.SetErr(&stderr)
	rootCmd.SetArgs(args)
	err := rootCmd.ExecuteContext(ctx)
	return stdout.String(), stderr.String(), err
}

// serveChain runs an in-process bridge in front of chain until the test ends.
func serveChain(t *testing.T, endpoint string, chain *target.Chain) *rbb.Bridge {
	t.Helper()
	cfg := rbb.DefaultConfig()
	cfg.Endpoint = endpoint
	cfg.Refill = rbb.RefillStall
	cfg.StallTimeout = time.Millisecond
	cfg.Logger = logging.Discard()
	bridge, err := rbb.Open(cfg)
	if err != nil {
		t.Fatalf("Open returned error: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for ctx.Err() == nil {
			pins, err := bridge.Tick(chain.TDO())
			if err != nil {
				t.Errorf("Tick returned error: %v", err)
				return
			}
			chain.Apply(pins)
		}
	}()
	t.Cleanup(func() {
		cancel()
		wg.Wait()
		bridge.Close()
	})
	return bridge
}

func TestParseE2E(t *testing.T) {
	tests := []struct {
		name        string
		args        []string
		wantErr     bool
		wantContain []string
	}{
		{
			name: "profile",
			args: []string{"parse", "testdata/rv_dtm.bsd"},
			wantContain: []string{
				"Entity: RV_DTM",
				"IR Length: 5 bits",
				"IDCODE: 0x00000913 (mask: 0x0FFFFFFF)",
				"Instructions: 4 total",
				"00001 (0x1)",
				"10001 (0x11)",
				"Simulated as: IR 5 bits, IDCODE 0x00000913, IDCODE opcode 0x1",
			},
		},
		{
			name:        "ports",
			args:        []string{"parse", "--ports", "testdata/rv_dtm.bsd"},
			wantContain: []string{"Ports: 3 declarations", "TCK, TMS, TDI"},
		},
		{
			name:    "missing file",
			args:    []string{"parse", "testdata/missing.bsd"},
			wantErr: true,
		},
		{
			name:    "no file",
			args:    []string{"parse"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, _, err := execute(context.Background(), tt.args...)
			if tt.wantErr {
				if err == nil {
					t.Errorf("Expected error but got none")
				}
				return
			}
			if err != nil {
				t.Fatalf("Unexpected error: %v\nOutput: %s", err, out)
			}
			for _, want := range tt.wantContain {
				if !strings.Contains(out, want) {
					t.Errorf("Output missing %q\nGot:\n%s", want, out)
				}
			}
		})
	}
}

func TestScanE2E(t *testing.T) {
	chain, err := target.NewChain(
		target.Device{Name: "dap", IDCode: 0x4BA00477, IRLength: 4},
		target.Device{Name: "dtm", IDCode: 0x00000913, IRLength: 5},
	)
	if err != nil {
		t.Fatalf("NewChain returned error: %v", err)
	}
	bridge := serveChain(t, "127.0.0.1:0", chain)

	out, _, err := execute(context.Background(),
		"scan", "--connect", bridge.Addr(), "--count", "2", "--bsdl", "testdata")
	if err != nil {
		t.Fatalf("scan returned error: %v\nOutput: %s", err, out)
	}
	for _, want := range []string{
		"Found 2 device(s)",
		"[0] 0x4BA00477 (Mfg: ARM Ltd",
		"[1] 0x00000913 (Mfg: SiFive",
		"RV_DTM, IR Length: 5 bits",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("Output missing %q\nGot:\n%s", want, out)
		}
	}
}

func TestScanErrors(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{"missing count", []string{"scan", "--connect", "127.0.0.1:9"}},
		{"zero count", []string{"scan", "--count", "0"}},
		{"nothing listening", []string{"scan", "--count", "1", "--connect", "unix:" + filepath.Join(t.TempDir(), "none.sock")}},
		{"bad bsdl dir", []string{"scan", "--count", "1", "--bsdl", filepath.Join(t.TempDir(), "missing")}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, _, err := execute(context.Background(), tt.args...); err == nil {
				t.Errorf("Expected error but got none")
			}
		})
	}
}

func TestServeE2E(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rbb.sock")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	type result struct {
		stderr string
		err    error
	}
	done := make(chan result, 1)
	go func() {
		_, stderr, err := execute(ctx, "serve",
			"--listen", "unix:"+path,
			"--idcode", "0x4BA00477", "--irlen", "4",
			"--bsdl", "testdata/rv_dtm.bsd",
			"--refill", "stall", "--stall-timeout", "1ms", "--idle-sleep", "0")
		done <- result{stderr, err}
	}()

	var rb *jtag.RemoteBitbang
	deadline := time.Now().Add(5 * time.Second)
	for {
		dctx, dcancel := context.WithTimeout(context.Background(), time.Second)
		var err error
		rb, err = jtag.DialRemoteBitbang(dctx, path)
		dcancel()
		if err == nil {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("serve never started listening: %v", err)
		}
		time.Sleep(10 * time.Millisecond)
	}

	ids, err := jtag.ReadIDCodes(rb, 2)
	if err != nil {
		t.Fatalf("ReadIDCodes returned error: %v", err)
	}
	if ids[0] != 0x4BA00477 || ids[1] != 0x00000913 {
		t.Fatalf("ids = %08X", ids)
	}
	if err := rb.Close(); err != nil {
		t.Fatalf("Close returned error: %v", err)
	}

	cancel()
	select {
	case res := <-done:
		if res.err != nil {
			t.Fatalf("serve returned error: %v\nStderr: %s", res.err, res.stderr)
		}
		for _, want := range []string{"serving 2 device(s)", "stopped after", "1 client(s)"} {
			if !strings.Contains(res.stderr, want) {
				t.Errorf("Stderr missing %q\nGot:\n%s", want, res.stderr)
			}
		}
	case <-time.After(5 * time.Second):
		t.Fatal("serve did not stop after cancel")
	}
}

func TestServeStopsAfterCycles(t *testing.T) {
	_, stderr, err := execute(context.Background(), "serve",
		"--listen", "127.0.0.1:0", "--cycles", "1000", "--idle-sleep", "0")
	if err != nil {
		t.Fatalf("serve returned error: %v", err)
	}
	for _, want := range []string{"serving 1 device(s)", "stopped after 1000 cycles"} {
		if !strings.Contains(stderr, want) {
			t.Errorf("Stderr missing %q\nGot:\n%s", want, stderr)
		}
	}
}

func TestServeFlagErrors(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{"irlen count", []string{"serve", "--idcode", "0x4BA00477", "--idcode", "0x00000913", "--irlen", "4,5,6"}},
		{"bad idcode", []string{"serve", "--idcode", "zz", "--irlen", "4"}},
		{"idcode without bit 0", []string{"serve", "--idcode", "0x4BA00476", "--irlen", "4"}},
		{"irlen too short", []string{"serve", "--idcode", "0x4BA00477", "--irlen", "1"}},
		{"bad refill", []string{"serve", "--refill", "sometimes"}},
		{"missing bsdl", []string{"serve", "--bsdl", "testdata/missing.bsd"}},
		{"bad listen", []string{"serve", "--listen", "localhost:http", "--cycles", "1"}},
		{"bad log level", []string{"serve", "--log-level", "loud", "--cycles", "1"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, _, err := execute(context.Background(), tt.args...); err == nil {
				t.Errorf("Expected error but got none")
			}
		})
	}
}

func TestServeRunsAgainAfterCancelledRun(t *testing.T) {
	cancelled, cancel := context.WithCancel(context.Background())
	cancel()
	_, stderr, err := execute(cancelled, "serve",
		"--listen", "127.0.0.1:0", "--cycles", "1000", "--idle-sleep", "0")
	if err != nil {
		t.Fatalf("cancelled serve returned error: %v", err)
	}
	if !strings.Contains(stderr, "stopped after 0 cycles") {
		t.Fatalf("cancelled serve ran cycles\nGot:\n%s", stderr)
	}

	_, stderr, err = execute(context.Background(), "serve",
		"--listen", "127.0.0.1:0", "--cycles", "1000", "--idle-sleep", "0")
	if err != nil {
		t.Fatalf("second serve returned error: %v", err)
	}
	if !strings.Contains(stderr, "stopped after 1000 cycles") {
		t.Errorf("second serve inherited the cancelled context\nGot:\n%s", stderr)
	}
}

func TestBuildChainLeavesFlagsUntouched(t *testing.T) {
	serveIDCodes, serveIRLens, serveBSDL = nil, nil, nil
	chain, err := buildChain()
	if err != nil {
		t.Fatalf("buildChain returned error: %v", err)
	}
	if chain.Len() != 1 {
		t.Fatalf("default chain has %d devices", chain.Len())
	}
	if serveIDCodes != nil || serveIRLens != nil {
		t.Fatalf("defaults leaked into flags: idcode=%v irlen=%v", serveIDCodes, serveIRLens)
	}

	// An --idcode without --irlen takes the default length.
	serveIDCodes = []string{"0x4BA00477"}
	defer func() { serveIDCodes = nil }()
	chain, err = buildChain()
	if err != nil {
		t.Fatalf("buildChain returned error: %v", err)
	}
	if chain.Len() != 1 || serveIRLens != nil {
		t.Fatalf("chain len %d, irlen flag %v", chain.Len(), serveIRLens)
	}
}
