// Package gencert implements the gencert command, which creates a CA and a
// server certificate for testing TLS connections.
package gencert

import (
	"context"
	"fmt"

	"dominicbreuker/nbtls/pkg/crypto"
	"dominicbreuker/nbtls/pkg/log"

	"github.com/urfave/cli/v3"
)

const (
	dirFlag  = "dir"
	hostFlag = "host"
	seedFlag = "seed"
)

// GetCommand returns the CLI command generating certificates.
func GetCommand() *cli.Command {
	return &cli.Command{
		Name:  "gencert",
		Usage: "Generate a CA and a certificate signed by it",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			return generate(cmd.String(dirFlag), cmd.String(seedFlag), cmd.StringSlice(hostFlag))
		},
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  dirFlag,
				Usage: "Output directory",
				Value: ".",
			},
			&cli.StringSliceFlag{
				Name:  hostFlag,
				Usage: "DNS name or IP address the certificate is valid for (repeatable)",
				Value: []string{"localhost", "127.0.0.1"},
			},
			&cli.StringFlag{
				Name:  seedFlag,
				Usage: "Seed for a reproducible CA key, random if empty",
			},
		},
	}
}

func generate(dir, seed string, hosts []string) error {
	if len(hosts) == 0 {
		return fmt.Errorf("at least one '--host' is required")
	}

	pki, err := crypto.GeneratePKI(seed, hosts...)
	if err != nil {
		return fmt.Errorf("generating certificates: %w", err)
	}
	if err := pki.WriteFiles(dir); err != nil {
		return fmt.Errorf("writing certificates: %w", err)
	}

	log.InfoMsg("Wrote %s, %s and %s to %s\n", crypto.CAFileName, crypto.CertFileName, crypto.KeyFileName, dir)
	return nil
}
