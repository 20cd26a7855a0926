package main

import (
	"bytes"
	"crypto/ed25519"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"

	"github.com/Nitefawkes/TenzikCore/receipt"
)

func executeCommand(root *cobra.Command, args ...string) (string, error) {
	buf := new(bytes.Buffer)
	root.SetOut(buf)
	root.SetErr(buf)
	root.SetArgs(args)
	err := root.Execute()
	return buf.String(), err
}

func TestCLIHelp(t *testing.T) {
	output, err := executeCommand(rootCmd, "--help")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	expectedPhrases := []string{
		"tenzik",
		"capsule",
		"run",
		"validate",
		"keygen",
		"receipt",
	}

	for _, phrase := range expectedPhrases {
		if !strings.Contains(output, phrase) {
			t.Errorf("help output should contain %q", phrase)
		}
	}
}

func TestCLIRunHelp(t *testing.T) {
	output, err := executeCommand(rootCmd, "run", "--help")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	expectedPhrases := []string{
		"--metrics",
		"--show-receipt",
		"--record-failures",
		"--key",
		"--seed",
		"--time-ms",
		"--interactive",
		"--profile",
		"--preset",
	}

	for _, phrase := range expectedPhrases {
		if !strings.Contains(output, phrase) {
			t.Errorf("run help output should contain %q", phrase)
		}
	}
}

func TestCLIValidateHelp(t *testing.T) {
	output, err := executeCommand(rootCmd, "validate", "--help")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	expectedPhrases := []string{
		"validate",
		"allowlist",
		"run and memory exports",
	}

	for _, phrase := range expectedPhrases {
		if !strings.Contains(output, phrase) {
			t.Errorf("validate help output should contain %q", phrase)
		}
	}
}

func TestCLIReceiptVerifyHelp(t *testing.T) {
	output, err := executeCommand(rootCmd, "receipt", "verify", "--help")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	expectedPhrases := []string{
		"--pubkey",
		"--max-age",
		"signature",
	}

	for _, phrase := range expectedPhrases {
		if !strings.Contains(output, phrase) {
			t.Errorf("receipt verify help output should contain %q", phrase)
		}
	}
}

func TestCLIResolveLimitsPreset(t *testing.T) {
	cmd := &cobra.Command{}
	cmd.Flags().String("profile", "", "")
	cmd.Flags().String("preset", "", "")
	cmd.Flags().Set("preset", "production")

	limits, profile, err := resolveLimits(cmd)
	if err != nil {
		t.Fatalf("resolveLimits() error: %v", err)
	}
	if profile != nil {
		t.Error("no profile was given, got one back")
	}
	if limits.FuelLimit != 500_000 {
		t.Errorf("FuelLimit = %d, want production's 500000", limits.FuelLimit)
	}
}

func TestCLIResolveLimitsUnknownPreset(t *testing.T) {
	cmd := &cobra.Command{}
	cmd.Flags().String("profile", "", "")
	cmd.Flags().String("preset", "", "")
	cmd.Flags().Set("preset", "turbo")

	_, _, err := resolveLimits(cmd)
	if err == nil {
		t.Fatal("expected error for unknown preset")
	}
	if !strings.Contains(err.Error(), "unknown preset") {
		t.Errorf("error should mention unknown preset, got: %v", err)
	}
}

func TestCLIResolveLimitsProfile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "runner.hcl")
	src := `
preset = "production"

limits {
  fuel_limit = 42000
}
`
	if err := os.WriteFile(path, []byte(src), 0o644); err != nil {
		t.Fatalf("write profile: %v", err)
	}

	cmd := &cobra.Command{}
	cmd.Flags().String("profile", "", "")
	cmd.Flags().String("preset", "", "")
	cmd.Flags().Set("profile", path)

	limits, profile, err := resolveLimits(cmd)
	if err != nil {
		t.Fatalf("resolveLimits() error: %v", err)
	}
	if profile == nil {
		t.Fatal("expected the loaded profile back")
	}
	if limits.FuelLimit != 42000 {
		t.Errorf("FuelLimit = %d, want the profile's 42000", limits.FuelLimit)
	}
	if limits.MemoryLimitMB != 16 {
		t.Errorf("MemoryLimitMB = %d, want production's 16", limits.MemoryLimitMB)
	}
}

func TestCLIResolveLimitsConflict(t *testing.T) {
	cmd := &cobra.Command{}
	cmd.Flags().String("profile", "", "")
	cmd.Flags().String("preset", "", "")
	cmd.Flags().Set("profile", "runner.hcl")
	cmd.Flags().Set("preset", "production")

	_, _, err := resolveLimits(cmd)
	if err == nil {
		t.Fatal("expected error when both --profile and --preset are set")
	}
}

func TestCLISeedFunc(t *testing.T) {
	first := seedFunc(7)()
	second := seedFunc(7)()
	other := seedFunc(8)()

	if len(first) != 32 {
		t.Fatalf("seed length = %d, want 32", len(first))
	}
	if !bytes.Equal(first, second) {
		t.Error("same numeric seed produced different byte seeds")
	}
	if bytes.Equal(first, other) {
		t.Error("different numeric seeds produced the same byte seed")
	}
}

func TestCLIVerifySignature(t *testing.T) {
	key, err := receipt.GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey() error: %v", err)
	}
	rec := receipt.New([]byte("module"), []byte("input"), []byte("output"), receipt.Metrics{FuelUsed: 10}, 1)
	if err := rec.Sign(key); err != nil {
		t.Fatalf("Sign() error: %v", err)
	}

	ok, err := verifySignature(rec, "")
	if err != nil || !ok {
		t.Errorf("verifySignature(self) = (%v, %v), want (true, nil)", ok, err)
	}

	other, err := receipt.GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey() error: %v", err)
	}
	otherID := receipt.NodeID(other.Public().(ed25519.PublicKey))
	ok, err = verifySignature(rec, otherID)
	if err != nil {
		t.Errorf("verifySignature(wrong key) error: %v", err)
	}
	if ok {
		t.Error("signature verified against the wrong key")
	}

	if _, err := verifySignature(rec, "not-hex"); err == nil {
		t.Error("expected error for a malformed pubkey")
	}
}

func TestCLIKeygen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "node.key")

	old := os.Stdout
	r, w, _ := os.Pipe()
	os.Stdout = w

	_, err := executeCommand(rootCmd, "keygen", "--out", path)

	w.Close()
	os.Stdout = old

	if err != nil {
		t.Fatalf("keygen error: %v", err)
	}

	var buf bytes.Buffer
	buf.ReadFrom(r)
	if !strings.Contains(buf.String(), "node id") {
		t.Errorf("keygen output should mention the node id, got: %q", buf.String())
	}

	key, err := receipt.LoadKey(path)
	if err != nil {
		t.Fatalf("LoadKey() error: %v", err)
	}
	if len(key) != ed25519.PrivateKeySize {
		t.Errorf("key length = %d, want %d", len(key), ed25519.PrivateKeySize)
	}

	if _, err := executeCommand(rootCmd, "keygen", "--out", path); err == nil {
		t.Error("expected error when the key file already exists")
	}
}

func TestCLITextual(t *testing.T) {
	tests := []struct {
		name string
		data []byte
		want bool
	}{
		{"json", []byte(`{"name":"Alice"}`), true},
		{"multiline", []byte("line one\nline two\n"), true},
		{"utf8", []byte("héllo"), true},
		{"binary", []byte{0x00, 0x01, 0xFF}, false},
		{"invalid utf8", []byte{0xC3, 0x28}, false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := textual(tc.data); got != tc.want {
				t.Errorf("textual(%q) = %v, want %v", tc.data, got, tc.want)
			}
		})
	}
}

func TestCLIShortID(t *testing.T) {
	long := strings.Repeat("a", 64)
	if got := shortID(long); got != strings.Repeat("a", 12) {
		t.Errorf("shortID(long) = %q", got)
	}
	if got := shortID("abc"); got != "abc" {
		t.Errorf("shortID(short) = %q", got)
	}
}
