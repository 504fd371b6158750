package main

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"
)

func main() {
	app := &cli.App{
		Name:  "relaychat",
		Usage: "send and receive files in a relaychat room",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "url",
				Value: "ws://localhost:8080/ws",
				Usage: "server websocket endpoint",
			},
			&cli.StringFlag{
				Name:  "origin",
				Value: "http://localhost:8080",
				Usage: "Origin header sent to the server",
			},
			&cli.StringFlag{
				Name:  "room",
				Value: "lobby",
				Usage: "room to join",
			},
			&cli.StringFlag{
				Name:  "log-level",
				Value: "info",
				Usage: "debug, info, warn or error",
			},
		},
		Commands: []*cli.Command{
			sendCmd,
			listenCmd,
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
