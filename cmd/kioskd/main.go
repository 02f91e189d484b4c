package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/alecthomas/kong"

	"github.com/roomtrek/kioskd/internal/config"
	"github.com/roomtrek/kioskd/internal/daemon"
	"github.com/roomtrek/kioskd/internal/media"
	"github.com/roomtrek/kioskd/internal/poller"
)

var CLI struct {
	Config  string `short:"c" help:"Configuration file path" default:"config.yaml"`
	Verbose bool   `short:"v" help:"Enable verbose logging"`

	Run struct {
		Workers []string `short:"w" help:"Worker names to start (default: all)"`
	} `cmd:"" help:"Run the kiosk daemon"`

	SyncMedia struct {
		Hevc bool `help:"Platform decodes HEVC smoothly"`
		Vp9  bool `help:"Platform decodes VP9 smoothly"`
		Av1  bool `help:"Platform decodes AV1 smoothly"`
	} `cmd:"" name:"sync-media" help:"Run one media synchronization pass"`

	Say struct {
		Text string `arg:"" help:"Text to synthesize"`
	} `cmd:"" help:"Synthesize speech and print the cached wav path"`

	Store struct {
		Get struct {
			Key string `arg:"" help:"Key to read"`
		} `cmd:"" help:"Read a device-state key"`
		Set struct {
			Key   string `arg:"" help:"Key to write"`
			Value string `arg:"" help:"Value to write"`
		} `cmd:"" help:"Write a device-state key"`
	} `cmd:"" help:"Inspect or edit the device state"`
}

func main() {
	kctx := kong.Parse(&CLI)

	cfg, err := config.Load(CLI.Config)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load configuration: %v\n", err)
		os.Exit(1)
	}
	if CLI.Verbose {
		cfg.Logging.Level = "debug"
	}
	logger := config.NewLogger(cfg.Logging)
	slog.SetDefault(logger)

	d, err := daemon.New(cfg, logger)
	if err != nil {
		logger.Error("daemon init failed", "error", err)
		os.Exit(1)
	}

	if err := run(kctx.Command(), d); err != nil {
		logger.Error("command failed", "error", err)
		os.Exit(1)
	}
}

func run(command string, d *daemon.Daemon) error {
	switch command {
	case "run":
		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		workers := CLI.Run.Workers
		if len(workers) == 0 {
			workers = []string{
				poller.NameClue,
				poller.NameGameInfo,
				poller.NameTimerRequests,
				poller.NameUpdateRoom,
				poller.NameShutdownRestart,
				poller.NameHeartbeat,
				poller.NameScreenshot,
				poller.NameDeviceRequests,
			}
		}
		return d.Run(ctx, workers)

	case "sync-media":
		caps := media.Capabilities{
			HEVC: CLI.SyncMedia.Hevc,
			VP9:  CLI.SyncMedia.Vp9,
			AV1:  CLI.SyncMedia.Av1,
		}
		res, err := d.SyncMedia(context.Background(), caps)
		if err != nil {
			return err
		}
		fmt.Printf("downloaded=%d skipped=%d transcoded=%d pruned=%d errors=%d\n",
			res.Downloaded, res.Skipped, res.Transcoded, res.Pruned, len(res.Errors))
		return nil

	case "say <text>":
		path, err := d.Cache().Synthesize(context.Background(), CLI.Say.Text)
		if err != nil {
			return err
		}
		fmt.Println(path)
		return nil

	case "store get <key>":
		value, err := d.Store().Get(context.Background(), CLI.Store.Get.Key)
		if err != nil {
			return err
		}
		fmt.Println(value)
		return nil

	case "store set <key> <value>":
		return d.Store().Set(context.Background(), CLI.Store.Set.Key, CLI.Store.Set.Value)

	default:
		return fmt.Errorf("unknown command %q", command)
	}
}
