// Command nbtls connects to remote hosts over tcp, ws, wss or udp and
// optionally secures the connection with TLS 1.3.
package main

import (
	"context"
	"os"

	"dominicbreuker/nbtls/cmd/connect"
	"dominicbreuker/nbtls/cmd/gencert"
	"dominicbreuker/nbtls/cmd/shared"
	"dominicbreuker/nbtls/cmd/version"
	"dominicbreuker/nbtls/pkg/log"

	"github.com/urfave/cli/v3"
)

func newApp() *cli.Command {
	return &cli.Command{
		Name:  "nbtls",
		Usage: "TLS client over non-blocking transports",
		Commands: []*cli.Command{
			connect.GetCommand(),
			gencert.GetCommand(),
			version.GetCommand(),
		},
	}
}

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	shared.SetupSignalHandling(cancel)

	if err := newApp().Run(ctx, os.Args); err != nil {
		log.ErrorMsg("%s\n", err)
		os.Exit(1)
	}
}
