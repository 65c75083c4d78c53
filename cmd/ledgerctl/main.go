package main

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"
)

func main() {
	app := &cli.App{
		Name:      "ledgerctl",
		Usage:     "client-side key and signing tool for ledgerd",
		Copyright: "(c) 2025 shruggr",
		Commands: []*cli.Command{
			&Keygen,
			&Address,
			&Sign,
			&Verify,
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
}
