package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/Nitefawkes/TenzikCore/engine"
	"github.com/Nitefawkes/TenzikCore/receipt"
)

var runCmd = &cobra.Command{
	Use:   "run <capsule.wasm> [input]",
	Short: "Validate, execute, and sign a receipt for a capsule",
	Long: `Run a capsule through the full pipeline: static validation,
capability-scoped execution, and receipt signing.

Input can be provided as the second argument or piped via stdin:
  tenzik run capsule.wasm '{"name":"Alice"}'
  echo -n '{"name":"Alice"}' | tenzik run capsule.wasm

The capsule output goes to stdout. Metrics and diagnostics go to
stderr. With --show-receipt the signed receipt JSON follows the
output on stdout.`,
	Args: cobra.RangeArgs(1, 2),
	RunE: runRun,
}

func init() {
	runCmd.Flags().Bool("metrics", false, "Print execution metrics to stderr")
	runCmd.Flags().Bool("show-receipt", false, "Print the signed receipt JSON")
	runCmd.Flags().Bool("record-failures", false, "Sign receipts for failed executions too")
	runCmd.Flags().String("key", "", "Path to ed25519 signing key file (default: ephemeral key)")
	runCmd.Flags().Uint64("seed", 0, "Fix the random_bytes stream to this seed")
	runCmd.Flags().Int64("time-ms", 0, "Fix the time_now_ms clock to this value")
	runCmd.Flags().BoolP("interactive", "i", false, "Inspect the result in a terminal UI")
	rootCmd.AddCommand(runCmd)
}

func runRun(cmd *cobra.Command, args []string) error {
	module, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("read capsule: %w", err)
	}

	input, err := readInput(args)
	if err != nil {
		return err
	}

	rt, err := buildRuntime(cmd)
	if err != nil {
		return err
	}

	interactive, _ := cmd.Flags().GetBool("interactive")
	if interactive {
		if !term.IsTerminal(int(os.Stdout.Fd())) {
			rt.Close(context.Background())
			return fmt.Errorf("interactive mode requires a terminal")
		}
		return runInteractive(rt, args[0], module, string(input))
	}
	defer rt.Close(context.Background())

	showReceipt, _ := cmd.Flags().GetBool("show-receipt")
	showMetrics, _ := cmd.Flags().GetBool("metrics")

	res, runErr := rt.Run(context.Background(), module, input)
	if runErr != nil {
		if res != nil && res.Receipt != nil {
			fmt.Fprintf(os.Stderr, "%s receipt %s signed with status %s\n",
				styled(warnStyle, "failure"), shortID(res.Receipt.ReceiptID()), res.Receipt.Status)
			if showReceipt {
				printReceipt(res.Receipt)
			}
		}
		if res != nil && showMetrics {
			printMetrics(res.Metrics)
		}
		return runErr
	}

	os.Stdout.Write(res.Output)
	if len(res.Output) > 0 && res.Output[len(res.Output)-1] != '\n' && term.IsTerminal(int(os.Stdout.Fd())) {
		fmt.Println()
	}

	if showReceipt {
		printReceipt(res.Receipt)
	}
	if showMetrics {
		printMetrics(res.Metrics)
	}
	return nil
}

// readInput takes the second positional argument, falling back to
// piped stdin. No input at all is valid; capsules may ignore it.
func readInput(args []string) ([]byte, error) {
	if len(args) > 1 {
		return []byte(args[1]), nil
	}
	stat, err := os.Stdin.Stat()
	if err != nil || (stat.Mode()&os.ModeCharDevice) != 0 {
		return nil, nil
	}
	data, err := io.ReadAll(os.Stdin)
	if err != nil {
		return nil, fmt.Errorf("read stdin: %w", err)
	}
	return data, nil
}

func printReceipt(rec *receipt.Receipt) {
	data, err := rec.Encode()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: encode receipt: %v\n", err)
		return
	}
	os.Stdout.Write(data)
	fmt.Println()
}

func printMetrics(m engine.Metrics) {
	fmt.Fprintf(os.Stderr, "%s %d\n", styled(labelStyle, "fuel used "), m.FuelUsed)
	fmt.Fprintf(os.Stderr, "%s %.3f MB\n", styled(labelStyle, "memory    "), m.MemoryMB)
	fmt.Fprintf(os.Stderr, "%s %d ms\n", styled(labelStyle, "duration  "), m.DurationMS)
	fmt.Fprintf(os.Stderr, "%s %d\n", styled(labelStyle, "host calls"), m.HostCalls)
}

func shortID(id string) string {
	if len(id) > 12 {
		return id[:12]
	}
	return id
}
