package main

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"github.com/Tyrowin/relaychat/internal/client"
	"github.com/Tyrowin/relaychat/internal/logger"
	"github.com/Tyrowin/relaychat/internal/protocol"
	"github.com/Tyrowin/relaychat/internal/transfer"
)

const closeTimeout = 5 * time.Second

var sendCmd = &cli.Command{
	Name:      "send",
	Usage:     "Send a file to everyone in the room",
	ArgsUsage: "<file>",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:  "message",
			Usage: "chat line sent along with the file",
		},
	},
	Action: func(c *cli.Context) error {
		path := c.Args().First()
		if path == "" {
			return cli.Exit("send needs a file argument", 2)
		}

		return withEndpoint(c, func(ctx context.Context, ep *client.Endpoint, log *zap.SugaredLogger) error {
			session, err := ep.SendFile(path)
			if err != nil {
				return err
			}
			if msg := c.String("message"); msg != "" {
				if err := ep.SendChat(msg); err != nil {
					return err
				}
			}

			select {
			case <-session.Done():
			case <-ctx.Done():
				return ctx.Err()
			}
			if err := session.Err(); err != nil {
				return err
			}
			log.Infow("send", "status", "done", "file", session.Manifest().FileName, "bytes", session.BytesProcessed())
			return nil
		})
	},
}

var listenCmd = &cli.Command{
	Name:  "listen",
	Usage: "Stay in the room, print chat and save incoming files",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:  "download-dir",
			Usage: "where received files are written, overrides TRANSFER_DOWNLOAD_DIR",
		},
	},
	Action: func(c *cli.Context) error {
		return withEndpoint(c, func(ctx context.Context, ep *client.Endpoint, log *zap.SugaredLogger) error {
			log.Infow("listen", "status", "waiting", "room", c.String("room"))
			<-ctx.Done()
			return nil
		})
	},
}

// transferEvents logs through zap and prints completions for the user.
type transferEvents struct {
	transfer.LogObserver
}

func (e *transferEvents) Completed(path string, m protocol.Manifest) {
	e.LogObserver.Completed(path, m)
	fmt.Printf("saved %s (%d bytes)\n", path, m.TotalBytes)
}

func (e *transferEvents) Failed(transferID string, err error) {
	e.LogObserver.Failed(transferID, err)
	fmt.Printf("transfer %s failed: %v\n", transferID, err)
}

func loadTransferConfig(c *cli.Context) (transfer.Config, error) {
	var cfg transfer.Config
	if err := envconfig.Process("", &cfg); err != nil {
		return cfg, err
	}
	if dir := c.String("download-dir"); dir != "" {
		cfg.DownloadDir = dir
	}
	return cfg.Sanitize(), nil
}

func roomURL(base, room string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", err
	}
	q := u.Query()
	q.Set("room", room)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// withEndpoint connects, runs the read loop, and calls fn. It returns when
// fn returns or the user interrupts.
func withEndpoint(c *cli.Context, fn func(context.Context, *client.Endpoint, *zap.SugaredLogger) error) error {
	log, err := logger.New("relaychat-client", c.String("log-level"))
	if err != nil {
		return err
	}
	defer log.Sync()

	cfg, err := loadTransferConfig(c)
	if err != nil {
		return err
	}

	target, err := roomURL(c.String("url"), c.String("room"))
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	conn, err := client.Dial(ctx, target, c.String("origin"), log)
	if err != nil {
		return err
	}

	events := &transferEvents{LogObserver: transfer.LogObserver{Log: log}}
	printChat := func(f protocol.Frame) {
		switch f.Type {
		case protocol.TypeNotice:
			fmt.Printf("** %s\n", f.Content)
		default:
			fmt.Printf("[%s] %s: %s\n", f.Room, f.From, f.Content)
		}
	}
	ep := client.NewEndpoint(conn, cfg, events, printChat, log)

	readErr := make(chan error, 1)
	go func() { readErr <- ep.Run(ctx) }()

	fnErr := make(chan error, 1)
	go func() { fnErr <- fn(ctx, ep, log) }()

	var result error
	select {
	case result = <-fnErr:
	case err := <-readErr:
		if err != nil {
			result = fmt.Errorf("connection lost: %w", err)
		}
	}

	if err := ep.Close(closeTimeout); err != nil {
		log.Warnw("close", "error", err)
	}
	return result
}
