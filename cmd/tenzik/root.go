package main

import (
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/term"

	tenzikcore "github.com/Nitefawkes/TenzikCore"
	"github.com/Nitefawkes/TenzikCore/config"
	"github.com/Nitefawkes/TenzikCore/receipt"
)

var (
	okStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#90EE90"))
	failStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF6B6B"))
	warnStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#FFD700"))
	labelStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#87CEEB"))
	dimStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#666666"))
)

var (
	noColor bool
	verbose bool
)

var rootCmd = &cobra.Command{
	Use:   "tenzik",
	Short: "Verified capsule execution engine",
	Long: `tenzik - Run WASM capsules with verifiable execution receipts.

A capsule is a small WebAssembly module exporting "run" and "memory".
Capsules execute in a deterministic sandbox: host access is limited to
granted capabilities, fuel and memory are metered, and every execution
yields an ed25519-signed receipt committing to the capsule, its input,
and its output.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if verbose {
			if log, err := zap.NewDevelopment(); err == nil {
				tenzikcore.SetLogger(log)
			}
		}
	},
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "Disable styled output")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Log engine internals to stderr")

	addLimitFlags(rootCmd)
}

func addLimitFlags(cmd *cobra.Command) {
	cmd.PersistentFlags().String("profile", "", "HCL profile file with limits and key settings")
	cmd.PersistentFlags().String("preset", "", "Built-in limits preset: default, development, production")
}

// resolveLimits produces the effective limits from --profile or --preset.
// The profile is returned too so callers can pick up key_file and
// record_failures; it is nil when no profile was given.
func resolveLimits(cmd *cobra.Command) (config.Limits, *config.Profile, error) {
	profilePath, _ := cmd.Flags().GetString("profile")
	presetName, _ := cmd.Flags().GetString("preset")

	if profilePath != "" && presetName != "" {
		return config.Limits{}, nil, fmt.Errorf("use --profile or --preset, not both")
	}

	if profilePath != "" {
		profile, err := config.Load(profilePath)
		if err != nil {
			return config.Limits{}, nil, err
		}
		limits, err := profile.Resolve()
		if err != nil {
			return config.Limits{}, nil, err
		}
		return limits, profile, nil
	}

	if presetName != "" {
		limits, ok := config.Preset(presetName)
		if !ok {
			return config.Limits{}, nil, fmt.Errorf("unknown preset %q: use one of %v", presetName, config.PresetNames())
		}
		return limits, nil, nil
	}

	return config.Default(), nil, nil
}

// buildRuntime assembles a runtime from the run command's flags. The
// signing key comes from --key, then the profile's key_file, then a
// fresh ephemeral key.
func buildRuntime(cmd *cobra.Command) (*tenzikcore.Runtime, error) {
	limits, profile, err := resolveLimits(cmd)
	if err != nil {
		return nil, err
	}

	opts := []tenzikcore.Option{tenzikcore.WithLimits(limits)}

	keyPath, _ := cmd.Flags().GetString("key")
	if keyPath == "" && profile != nil {
		keyPath = profile.KeyFile
	}
	if keyPath != "" {
		key, err := receipt.LoadKey(keyPath)
		if err != nil {
			return nil, err
		}
		opts = append(opts, tenzikcore.WithKey(key))
	}

	recordFailures, _ := cmd.Flags().GetBool("record-failures")
	if !cmd.Flags().Changed("record-failures") && profile != nil {
		recordFailures = profile.RecordFailures
	}
	opts = append(opts, tenzikcore.WithRecordFailures(recordFailures))

	if cmd.Flags().Changed("time-ms") {
		fixed, _ := cmd.Flags().GetInt64("time-ms")
		opts = append(opts, tenzikcore.WithClock(func() int64 { return fixed }))
	}
	if cmd.Flags().Changed("seed") {
		seed, _ := cmd.Flags().GetUint64("seed")
		opts = append(opts, tenzikcore.WithSeed(seedFunc(seed)))
	}

	return tenzikcore.New(opts...)
}

// seedFunc stretches a numeric seed into the 32-byte form the random
// stream wants.
func seedFunc(n uint64) func() []byte {
	return func() []byte {
		var b [8]byte
		binary.BigEndian.PutUint64(b[:], n)
		sum := sha256.Sum256(b[:])
		return sum[:]
	}
}

func useColor() bool {
	return !noColor && term.IsTerminal(int(os.Stdout.Fd()))
}

func styled(st lipgloss.Style, s string) string {
	if !useColor() {
		return s
	}
	return st.Render(s)
}
