// Package connect implements the connect command: it dials a transport,
// optionally runs a TLS handshake over it and pipes stdin and stdout
// through the resulting stream.
package connect

import (
	"context"
	"fmt"
	"io"
	"strings"

	"dominicbreuker/nbtls/cmd/shared"
	"dominicbreuker/nbtls/pkg/config"
	"dominicbreuker/nbtls/pkg/log"
	"dominicbreuker/nbtls/pkg/net"
	"dominicbreuker/nbtls/pkg/pipeio"

	"github.com/urfave/cli/v3"
)

// GetCommand returns the CLI command for connect mode.
func GetCommand() *cli.Command {
	return &cli.Command{
		Name:        "connect",
		Usage:       "Connect to a remote host, with or without TLS",
		Description: shared.GetBaseDescription(),
		ArgsUsage:   shared.GetArgsUsage(),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			args := cmd.Args()
			if args.Len() != 1 {
				return fmt.Errorf("must provide exactly one argument, got %d (%s)", args.Len(), strings.Join(args.Slice(), ", "))
			}

			proto, host, port, err := shared.ParseTransport(args.Get(0))
			if err != nil {
				return fmt.Errorf("parsing transport: %s", err)
			}

			verbose := cmd.Bool(shared.VerboseFlag)
			cfg := &config.Shared{
				Protocol: proto,
				Host:     host,
				Port:     port,
				Timeout:  cmd.Duration(shared.TimeoutFlag),
				Verbose:  verbose,
				Logger:   log.NewLogger(verbose),
			}
			tlsCfg := shared.NewTLSConfig(cmd)

			if shared.ReportValidationErrors(cfg.Logger, config.Validate(cfg, tlsCfg)) {
				return fmt.Errorf("exiting")
			}

			return run(ctx, cfg, tlsCfg, cmd.String(shared.LogFileFlag))
		},
		Flags: getFlags(),
	}
}

func getFlags() []cli.Flag {
	flags := []cli.Flag{}

	flags = append(flags, shared.GetCommonFlags()...)
	flags = append(flags, shared.GetTLSFlags()...)

	return flags
}

// run connects and pipes stdio through the stream until either side ends
// or ctx is cancelled.
func run(ctx context.Context, cfg *config.Shared, tlsCfg *config.TLS, logFile string) error {
	s, desc, err := net.Dial(ctx, cfg, tlsCfg)
	if err != nil {
		return fmt.Errorf("connecting: %w", err)
	}
	cfg.Logger.VerboseMsg("Session running on %s", desc)

	var conn io.ReadWriteCloser = s
	if logFile != "" {
		conn, err = log.NewLoggedStream(s, logFile)
		if err != nil {
			_ = s.Close()
			return fmt.Errorf("log.NewLoggedStream(%s): %w", logFile, err)
		}
	}

	stdio := pipeio.NewStdio(config.GetStdinFunc(cfg.Deps)(), config.GetStdoutFunc(cfg.Deps)())
	pipeio.Pipe(ctx, stdio, conn, func(err error) {
		cfg.Logger.ErrorMsg("%s\n", err)
	})

	cfg.Logger.VerboseMsg("Session with %s ended", desc.Addr)
	return nil
}
