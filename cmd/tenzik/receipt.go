package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/Nitefawkes/TenzikCore/receipt"
)

var receiptCmd = &cobra.Command{
	Use:   "receipt",
	Short: "Inspect and verify execution receipts",
}

var receiptVerifyCmd = &cobra.Command{
	Use:   "verify <receipt.json>",
	Short: "Check a receipt's signature and freshness",
	Long: `Verify an execution receipt. By default the signature is checked
against the node id embedded in the receipt; pass --pubkey to pin the
expected signer instead. With --max-age the receipt must also be
younger than the given duration.

Exits 1 when any check fails.`,
	Args: cobra.ExactArgs(1),
	RunE: runReceiptVerify,
}

func init() {
	receiptVerifyCmd.Flags().String("pubkey", "", "Expected signer as a hex public key")
	receiptVerifyCmd.Flags().Duration("max-age", 0, "Reject receipts older than this (0 disables)")
	receiptCmd.AddCommand(receiptVerifyCmd)
	rootCmd.AddCommand(receiptCmd)
}

func runReceiptVerify(cmd *cobra.Command, args []string) error {
	data, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("read receipt: %w", err)
	}
	rec, err := receipt.Decode(data)
	if err != nil {
		return err
	}

	fmt.Printf("%s %s\n", styled(labelStyle, "receipt"), shortID(rec.ReceiptID()))
	fmt.Printf("%s %s\n", styled(labelStyle, "capsule"), shortID(rec.CapsuleID))
	fmt.Printf("%s %s\n", styled(labelStyle, "node   "), rec.NodeID)
	fmt.Printf("%s %s (%s)\n", styled(labelStyle, "signed "), rec.Timestamp, rec.Status)

	pubkeyHex, _ := cmd.Flags().GetString("pubkey")
	ok, err := verifySignature(rec, pubkeyHex)
	if err != nil {
		fmt.Printf("%s %v\n", styled(failStyle, "signature malformed:"), err)
		return fmt.Errorf("verification failed")
	}
	if !ok {
		fmt.Println(styled(failStyle, "signature mismatch"))
		return fmt.Errorf("verification failed")
	}
	fmt.Println(styled(okStyle, "signature verified"))

	maxAge, _ := cmd.Flags().GetDuration("max-age")
	if maxAge > 0 {
		age, err := rec.Age(time.Now().UTC())
		if err != nil {
			fmt.Printf("%s %v\n", styled(failStyle, "timestamp malformed:"), err)
			return fmt.Errorf("verification failed")
		}
		if age > maxAge {
			fmt.Printf("%s age %s exceeds %s\n", styled(failStyle, "receipt is stale:"), age.Round(time.Second), maxAge)
			return fmt.Errorf("verification failed")
		}
		fmt.Printf("%s (age %s)\n", styled(okStyle, "receipt is fresh"), age.Round(time.Second))
	}
	return nil
}

func verifySignature(rec *receipt.Receipt, pubkeyHex string) (bool, error) {
	if pubkeyHex == "" {
		return rec.VerifyNode()
	}
	pub, err := receipt.ParseNodeID(pubkeyHex)
	if err != nil {
		return false, err
	}
	return rec.Verify(pub)
}
