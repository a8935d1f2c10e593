package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/danmuck/armlink/internal/config"
	"github.com/danmuck/armlink/internal/network"
	"github.com/danmuck/armlink/internal/observability"
	"github.com/danmuck/armlink/internal/robot"
	"github.com/danmuck/armlink/internal/server"
	"github.com/danmuck/armlink/internal/statelog"
	"github.com/rs/zerolog/log"
)

var _ robot.Transport = (*network.Conn)(nil)

type runOptions struct {
	configPath   string
	overridePath string
	demo         string
	cycles       int
}

func main() {
	var opts runOptions
	flag.StringVar(&opts.configPath, "config", "cmd/armctl/config.toml", "client config path")
	flag.StringVar(&opts.overridePath, "override", "", "optional per-host override file")
	flag.StringVar(&opts.demo, "demo", "", "run one routine then exit: hold|recover")
	flag.IntVar(&opts.cycles, "cycles", 1000, "control cycles for the hold routine")
	flag.Parse()

	if err := run(opts); err != nil {
		fmt.Fprintf(os.Stderr, "armctl: %v\n", err)
		os.Exit(1)
	}
}

func run(opts runOptions) error {
	logger := observability.InitLogger("armctl")
	observability.RegisterMetrics()

	cfg, err := loadConfig(opts.configPath, opts.overridePath)
	if err != nil {
		return err
	}
	robotOpts, err := config.RobotOptions(cfg)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	conn, err := network.Dial(ctx, config.NetworkConfig(cfg))
	if err != nil {
		return err
	}
	defer conn.Close()

	history := statelog.New(cfg.StateLog.Size)
	robotOpts.Logger = history
	sess, err := robot.New(ctx, conn, robotOpts)
	if err != nil {
		return err
	}
	logger.Info().
		Str("conn", conn.ID()).
		Str("address", cfg.Robot.Address).
		Uint16("version", sess.ServerVersion()).
		Msg("armctl.run connected")

	if cfg.Diagnostics.Enabled {
		srv := server.New(server.Config{
			Name:        "armctl",
			Addr:        cfg.Diagnostics.Addr,
			CorsOrigins: cfg.Diagnostics.CorsOrigins,
		}, sess, history)
		go func() {
			if err := srv.Serve(ctx); err != nil {
				log.Error().Err(err).Msg("armctl.run diagnostics stopped")
			}
		}()
	}

	switch opts.demo {
	case "":
		err = monitor(ctx, sess)
	case "hold":
		err = holdPosition(ctx, sess, opts.cycles)
	case "recover":
		_, err = sess.ExecuteCommand(ctx, robot.AutomaticErrorRecovery{})
	default:
		return fmt.Errorf("unknown demo %q", opts.demo)
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		dumpHistory(history, err)
		return err
	}
	return nil
}
