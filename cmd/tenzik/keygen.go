package main

import (
	"crypto/ed25519"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/Nitefawkes/TenzikCore/receipt"
)

var keygenCmd = &cobra.Command{
	Use:   "keygen",
	Short: "Generate an ed25519 signing key",
	Long: `Generate a fresh ed25519 key for receipt signing and write it to a
file as a hex-encoded seed. The printed node id is the hex public key;
share it with anyone who needs to verify your receipts.`,
	RunE: runKeygen,
}

func init() {
	keygenCmd.Flags().String("out", "tenzik.key", "Where to write the key file")
	rootCmd.AddCommand(keygenCmd)
}

func runKeygen(cmd *cobra.Command, args []string) error {
	out, _ := cmd.Flags().GetString("out")

	if _, err := os.Stat(out); err == nil {
		return fmt.Errorf("%s already exists; remove it first to regenerate", out)
	}

	key, err := receipt.GenerateKey()
	if err != nil {
		return err
	}
	if err := receipt.SaveKey(out, key); err != nil {
		return err
	}

	fmt.Printf("%s %s\n", styled(labelStyle, "key file"), out)
	fmt.Printf("%s  %s\n", styled(labelStyle, "node id"), receipt.NodeID(key.Public().(ed25519.PublicKey)))
	return nil
}
