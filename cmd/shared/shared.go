// Package shared provides common CLI flag definitions and helpers used by
// nbtls commands.
package shared

import (
	"strings"
	"time"

	"dominicbreuker/nbtls/pkg/config"
	"dominicbreuker/nbtls/pkg/log"

	"github.com/urfave/cli/v3"
)

const categoryCommon = "common"

// VerboseFlag is the name of the flag to enable verbose logging.
const VerboseFlag = "verbose"

// TimeoutFlag is the name of the flag bounding dial and handshake.
const TimeoutFlag = "timeout"

// LogFileFlag is the name of the flag to record session data to a file.
const LogFileFlag = "log"

// GetBaseDescription returns the base description text for transport
// specifications used in CLI commands.
func GetBaseDescription() string {
	return strings.Join([]string{
		"Specify transport like this: tcp://127.0.0.1:123 (supports tcp|ws|wss|udp)",
		"IPv6 hosts go in brackets: tcp://[::1]:123",
	}, "\n")
}

// GetArgsUsage returns the arguments usage string for CLI commands.
func GetArgsUsage() string {
	return "transport"
}

// GetCommonFlags returns flags every connecting command accepts.
func GetCommonFlags() []cli.Flag {
	return []cli.Flag{
		&cli.BoolFlag{
			Name:     VerboseFlag,
			Aliases:  []string{"v"},
			Usage:    "Verbose logging",
			Category: categoryCommon,
		},
		&cli.DurationFlag{
			Name:     TimeoutFlag,
			Aliases:  []string{"t"},
			Usage:    "Timeout for dial and TLS handshake, 0 to wait forever",
			Category: categoryCommon,
			Value:    10 * time.Second,
		},
		&cli.StringFlag{
			Name:     LogFileFlag,
			Aliases:  []string{"l"},
			Usage:    "Append all session data to this file",
			Category: categoryCommon,
		},
	}
}

const categoryTLS = "tls"

// SSLFlag is the name of the flag to enable TLS.
const SSLFlag = "ssl"

// ServerNameFlag is the name of the flag fixing the server name to verify.
const ServerNameFlag = "server-name"

// CAFlag is the name of the flag adding a CA bundle to the trusted roots.
const CAFlag = "ca"

// CertFlag is the name of the flag for the client certificate chain.
const CertFlag = "cert"

// KeyFlag is the name of the flag for the client private key.
const KeyFlag = "key"

// InsecureFlag is the name of the flag disabling certificate verification.
const InsecureFlag = "insecure"

// NoHostnameCheckFlag is the name of the flag disabling server name checks.
const NoHostnameCheckFlag = "no-hostname-check"

// GetTLSFlags returns the flags configuring the TLS client.
func GetTLSFlags() []cli.Flag {
	return []cli.Flag{
		&cli.BoolFlag{
			Name:     SSLFlag,
			Aliases:  []string{"s"},
			Usage:    "Use TLS encryption",
			Category: categoryTLS,
		},
		&cli.StringFlag{
			Name:     ServerNameFlag,
			Aliases:  []string{"n"},
			Usage:    "Verify the server as this name instead of the dialed host",
			Category: categoryTLS,
		},
		&cli.StringFlag{
			Name:     CAFlag,
			Usage:    "PEM file with additional trusted CA certificates",
			Category: categoryTLS,
		},
		&cli.StringFlag{
			Name:     CertFlag,
			Usage:    "PEM file with the client certificate chain",
			Category: categoryTLS,
		},
		&cli.StringFlag{
			Name:     KeyFlag,
			Aliases:  []string{"k"},
			Usage:    "PEM file with the client private key",
			Category: categoryTLS,
		},
		&cli.BoolFlag{
			Name:     InsecureFlag,
			Usage:    "Accept any server certificate",
			Category: categoryTLS,
		},
		&cli.BoolFlag{
			Name:     NoHostnameCheckFlag,
			Usage:    "Verify the server certificate chain but not its name",
			Category: categoryTLS,
		},
	}
}

// NewTLSConfig reads the TLS flags of cmd. With --ssl, a server name
// selects domain mode and its absence anonymous mode.
func NewTLSConfig(cmd *cli.Command) *config.TLS {
	cfg := &config.TLS{
		ServerName:      cmd.String(ServerNameFlag),
		CAFile:          cmd.String(CAFlag),
		CertFile:        cmd.String(CertFlag),
		KeyFile:         cmd.String(KeyFlag),
		Insecure:        cmd.Bool(InsecureFlag),
		NoHostnameCheck: cmd.Bool(NoHostnameCheckFlag),
	}

	switch {
	case !cmd.Bool(SSLFlag):
		cfg.Mode = config.ModePlain
	case cfg.ServerName != "":
		cfg.Mode = config.ModeTLSDomain
	default:
		cfg.Mode = config.ModeTLSAnonymous
	}

	return cfg
}

// ReportValidationErrors logs errs and reports whether there were any.
func ReportValidationErrors(logger *log.Logger, errs []error) bool {
	if len(errs) == 0 {
		return false
	}

	logger.ErrorMsg("Argument validation errors:\n")
	for _, err := range errs {
		logger.ErrorMsg(" - %s\n", err)
	}
	return true
}
