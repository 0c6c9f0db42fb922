package main

import (
	"crypto/rsa"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/dive-coalition/federation/internal/token"
	"github.com/spf13/cobra"
)

func tokenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint and inspect exchange tokens",
	}
	cmd.AddCommand(tokenMintCmd())
	cmd.AddCommand(tokenInspectCmd())
	return cmd
}

func tokenMintCmd() *cobra.Command {
	var (
		keyFile   string
		instance  string
		origin    string
		target    string
		subject   string
		clearance string
		country   string
		scopes    []string
		ttl       time.Duration
	)
	cmd := &cobra.Command{
		Use:   "mint",
		Short: "Mint an exchange token for a subject toward a target instance",
		RunE: func(cmd *cobra.Command, args []string) error {
			matrix, _, err := loadMatrix()
			if err != nil {
				return err
			}
			key, err := readPrivateKey(keyFile)
			if err != nil {
				return err
			}

			exchanger := token.NewExchanger(token.ExchangerConfig{
				InstanceCode: strings.ToUpper(instance),
				KeyID:        strings.ToLower(instance) + "-exchange-key",
				TTL:          ttl,
			}, key, matrix)

			resp, err := exchanger.Exchange(token.ExchangeRequest{
				Subject: token.IntrospectionResult{
					Active: true,
					Claims: &token.Claims{
						Subject:              subject,
						UniqueID:             subject + "@" + strings.ToLower(origin),
						Clearance:            clearance,
						CountryOfAffiliation: country,
					},
				},
				OriginInstance:  strings.ToUpper(origin),
				TargetInstance:  strings.ToUpper(target),
				RequestedScopes: scopes,
			})
			if err != nil {
				return err
			}

			fmt.Println(resp.AccessToken)
			return nil
		},
	}
	cmd.Flags().StringVar(&keyFile, "key", "", "PEM signing key file")
	cmd.Flags().StringVar(&instance, "instance", "", "local instance code (token issuer)")
	cmd.Flags().StringVar(&origin, "origin", "", "origin instance code of the subject")
	cmd.Flags().StringVar(&target, "target", "", "target instance code")
	cmd.Flags().StringVar(&subject, "subject", "", "subject identifier")
	cmd.Flags().StringVar(&clearance, "clearance", "", "subject clearance")
	cmd.Flags().StringVar(&country, "country", "", "subject country of affiliation")
	cmd.Flags().StringSliceVar(&scopes, "scopes", nil, "requested scopes")
	cmd.Flags().DurationVar(&ttl, "ttl", 15*time.Minute, "token lifetime")
	for _, flag := range []string{"key", "instance", "origin", "target", "subject"} {
		_ = cmd.MarkFlagRequired(flag)
	}
	return cmd
}

func tokenInspectCmd() *cobra.Command {
	var pubKeyFile string
	cmd := &cobra.Command{
		Use:   "inspect <token>",
		Short: "Verify an exchange token and print its claims",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			pub, err := readPublicKey(pubKeyFile)
			if err != nil {
				return err
			}

			claims, provenance, err := token.VerifyExchangeToken(args[0], pub)
			if err != nil {
				return fmt.Errorf("token invalid: %w", err)
			}

			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(map[string]any{
				"claims":         claims,
				"token_exchange": provenance,
			})
		},
	}
	cmd.Flags().StringVar(&pubKeyFile, "pubkey", "", "PEM public key file (or a private key to derive it from)")
	_ = cmd.MarkFlagRequired("pubkey")
	return cmd
}

func readPrivateKey(path string) (*rsa.PrivateKey, error) {
	block, err := readPEM(path)
	if err != nil {
		return nil, err
	}
	if key, err := x509.ParsePKCS1PrivateKey(block.Bytes); err == nil {
		return key, nil
	}
	parsed, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("parse private key: %w", err)
	}
	key, ok := parsed.(*rsa.PrivateKey)
	if !ok {
		return nil, errors.New("not an RSA private key")
	}
	return key, nil
}

func readPublicKey(path string) (*rsa.PublicKey, error) {
	block, err := readPEM(path)
	if err != nil {
		return nil, err
	}
	if parsed, err := x509.ParsePKIXPublicKey(block.Bytes); err == nil {
		if pub, ok := parsed.(*rsa.PublicKey); ok {
			return pub, nil
		}
		return nil, errors.New("not an RSA public key")
	}
	if key, err := readPrivateKey(path); err == nil {
		return &key.PublicKey, nil
	}
	return nil, fmt.Errorf("no RSA public key in %s", path)
}

func readPEM(path string) (*pem.Block, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read key: %w", err)
	}
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, fmt.Errorf("%s is not PEM encoded", path)
	}
	return block, nil
}
