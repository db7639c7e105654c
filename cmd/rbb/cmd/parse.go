package cmd

import (
	"fmt"
	"strings"

	"github.com/OpenTraceLab/rbbsim/pkg/bsdl"
	"github.com/OpenTraceLab/rbbsim/pkg/target"
	"github.com/spf13/cobra"
)

var showPorts bool

var parseCmd = &cobra.Command{
	Use:   "parse <bsdl-file>",
	Short: "Show what a BSDL file contributes to a simulated device",
	Long: `Parse a BSDL file and display the TAP parameters serve would use for it:
instruction length, IDCODE and the instruction opcodes.

Examples:
  rbb parse cpu.bsd
  rbb parse --ports cpu.bsd`,
	Args: cobra.ExactArgs(1),
	RunE: runParse,
}

func init() {
	rootCmd.AddCommand(parseCmd)

	parseCmd.Flags().BoolVarP(&showPorts, "ports", "p", false,
		"show port declarations")
}

func runParse(cmd *cobra.Command, args []string) error {
	filename := args[0]
	logger.Debugf("parsing BSDL file %s", filename)

	parser, err := bsdl.NewParser()
	if err != nil {
		return fmt.Errorf("failed to create parser: %w", err)
	}
	file, err := parser.ParseFile(filename)
	if err != nil {
		return fmt.Errorf("failed to parse file: %w", err)
	}
	prof, err := bsdl.ProfileOf(file)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Entity: %s\n", prof.Entity)

	if showPorts || verbose {
		fmt.Fprintf(out, "Ports: %d declarations\n", len(file.Entity.Ports))
		for _, p := range file.Entity.Ports {
			typ := p.Type
			if p.Range != nil {
				typ = fmt.Sprintf("%s(%d %s %d)", p.Type, p.Range.From, p.Range.Direction, p.Range.To)
			}
			fmt.Fprintf(out, "  %-20s : %-8s %s\n", strings.Join(p.Names, ", "), p.Mode, typ)
		}
	}

	fmt.Fprintf(out, "IR Length: %d bits\n", prof.InstructionLength)
	if prof.HasIDCode() {
		fmt.Fprintf(out, "IDCODE: 0x%08X", prof.IDCode)
		if prof.IDCodeMask != 0xFFFFFFFF {
			fmt.Fprintf(out, " (mask: 0x%08X)", prof.IDCodeMask)
		}
		fmt.Fprintln(out)
	} else {
		fmt.Fprintln(out, "IDCODE: none (device resets into BYPASS)")
	}

	names := prof.InstructionNames()
	fmt.Fprintf(out, "Instructions: %d total\n", len(names))
	for _, name := range names {
		op := prof.Instructions[name]
		fmt.Fprintf(out, "  %-15s %0*b (0x%X)\n", name, prof.InstructionLength, op, op)
	}

	if dev, err := target.DeviceFromProfile(prof); err != nil {
		fmt.Fprintf(out, "Not usable with serve: %v\n", err)
	} else {
		fmt.Fprintf(out, "Simulated as: IR %d bits, IDCODE 0x%08X, IDCODE opcode 0x%X\n",
			dev.IRLength, dev.IDCode, dev.IDCodeOpcode)
	}
	return nil
}
