package main

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func keygenCmd() *cobra.Command {
	var (
		out  string
		bits int
	)
	cmd := &cobra.Command{
		Use:   "keygen",
		Short: "Generate an RSA signing key for this instance",
		RunE: func(cmd *cobra.Command, args []string) error {
			key, err := rsa.GenerateKey(rand.Reader, bits)
			if err != nil {
				return fmt.Errorf("generate key: %w", err)
			}

			privBlock := &pem.Block{
				Type:  "RSA PRIVATE KEY",
				Bytes: x509.MarshalPKCS1PrivateKey(key),
			}
			if err := os.WriteFile(out, pem.EncodeToMemory(privBlock), 0o600); err != nil {
				return fmt.Errorf("write key: %w", err)
			}

			pubBytes, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
			if err != nil {
				return fmt.Errorf("encode public key: %w", err)
			}
			pubBlock := &pem.Block{Type: "PUBLIC KEY", Bytes: pubBytes}
			if err := os.WriteFile(out+".pub", pem.EncodeToMemory(pubBlock), 0o644); err != nil {
				return fmt.Errorf("write public key: %w", err)
			}

			fmt.Printf("wrote %s and %s.pub\n", out, out)
			return nil
		},
	}
	cmd.Flags().StringVar(&out, "out", "signing-key.pem", "output file")
	cmd.Flags().IntVar(&bits, "bits", 2048, "key size in bits")
	return cmd
}
