package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/Tyrowin/relaychat/internal/announce"
	"github.com/Tyrowin/relaychat/internal/logger"
	"github.com/Tyrowin/relaychat/internal/server"
)

const shutdownTimeout = 10 * time.Second

func main() {
	app := &cli.App{
		Name:  "relaychat-server",
		Usage: "chat rooms with file sharing over websocket",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "port",
				Usage: "listen address, overrides SERVER_PORT",
			},
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "debug, info, warn or error, overrides LOG_LEVEL",
			},
			&cli.StringFlag{
				Name:  "schedule-path",
				Usage: "where scheduled messages are kept, overrides SCHEDULE_PATH",
			},
			&cli.StringFlag{
				Name:  "schedule-backend",
				Usage: "file or leveldb, overrides SCHEDULE_BACKEND",
			},
		},
		Action: run,
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(c *cli.Context) error {
	cfg, err := server.LoadConfig()
	if err != nil {
		return err
	}
	if v := c.String("port"); v != "" {
		cfg.Port = v
	}
	if v := c.String("log-level"); v != "" {
		cfg.LogLevel = v
	}
	if v := c.String("schedule-path"); v != "" {
		cfg.Schedule.Path = v
	}
	if v := c.String("schedule-backend"); v != "" {
		cfg.Schedule.Backend = v
	}
	cfg.Sanitize()

	log, err := logger.New("relaychat-server", cfg.LogLevel)
	if err != nil {
		return err
	}
	defer log.Sync()

	console := server.NewConsole(log.Named("console"))
	hub := server.NewHub(cfg, console, log.Named("hub"))
	go hub.Run()

	store, err := announce.OpenStore(cfg.Schedule)
	if err != nil {
		return err
	}
	defer store.Close()

	announcer := announce.New(store, hub, console, log.Named("announcer"), announce.WithTick(cfg.Schedule.Tick))
	if err := announcer.Start(c.Context); err != nil {
		log.Warnw("startup", "error", err, "status", "starting with an empty schedule")
	}

	srv := server.New(cfg, hub, announcer, console, log.Named("http"))
	httpServer := server.CreateServer(cfg.Port, srv.Routes())

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.StartServer(httpServer, log)
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	var serveErr error
	select {
	case sig := <-sigCh:
		log.Infow("shutdown", "signal", sig.String())
	case serveErr = <-errCh:
		if serveErr != nil {
			log.Errorw("http", "error", serveErr)
		}
	}

	if err := server.ShutdownServer(httpServer, shutdownTimeout, log); err != nil {
		log.Warnw("shutdown", "error", err)
	}
	if err := hub.Shutdown(shutdownTimeout); err != nil {
		log.Warnw("shutdown", "error", err)
	}
	if err := announcer.Stop(); err != nil {
		log.Errorw("shutdown", "error", err)
	}

	return serveErr
}
