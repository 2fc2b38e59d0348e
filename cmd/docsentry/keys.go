package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/docsentry/internal/signing"
)

var (
	keysBits   int
	keysOutDir string
)

// keysCmd groups signing key subcommands.
var keysCmd = &cobra.Command{
	Use:   "keys",
	Short: "Manage audit signing keys",
}

var keysGenerateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Generate an RSA key pair for audit event signing",
	Long: `Generate writes signing.pem and signing.pub to the output directory
with 0600 permissions. Point signing.private_key and signing.public_key
at the generated files.

Examples:
  docsentry keys generate
  docsentry keys generate --bits 4096 --out ~/.config/docsentry/keys`,
	RunE: runKeysGenerate,
}

func init() {
	keysGenerateCmd.Flags().IntVar(&keysBits, "bits", 2048, "RSA key size in bits (minimum 2048)")
	keysGenerateCmd.Flags().StringVar(&keysOutDir, "out", "", "output directory (default ~/.config/docsentry/keys)")
	keysCmd.AddCommand(keysGenerateCmd)
}

func runKeysGenerate(cmd *cobra.Command, args []string) error {
	outDir := keysOutDir
	if outDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return fmt.Errorf("failed to get home directory: %w", err)
		}
		outDir = filepath.Join(home, ".config", "docsentry", "keys")
	}

	if err := os.MkdirAll(outDir, 0700); err != nil {
		return fmt.Errorf("failed to create key directory %s: %w", outDir, err)
	}

	privatePEM, publicPEM, err := signing.GenerateKeyPair(keysBits)
	if err != nil {
		return err
	}

	privatePath := filepath.Join(outDir, "signing.pem")
	publicPath := filepath.Join(outDir, "signing.pub")

	if err := os.WriteFile(privatePath, []byte(privatePEM), 0600); err != nil {
		return fmt.Errorf("failed to write private key: %w", err)
	}
	if err := os.WriteFile(publicPath, []byte(publicPEM), 0600); err != nil {
		return fmt.Errorf("failed to write public key: %w", err)
	}

	return printJSON(map[string]string{
		"private_key": privatePath,
		"public_key":  publicPath,
	})
}
