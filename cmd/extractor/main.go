package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/coreos/go-systemd/v22/daemon"

	"rpcextractor/internal/bus"
	"rpcextractor/internal/catalog"
	"rpcextractor/internal/config"
	"rpcextractor/internal/extractor"
	"rpcextractor/internal/metrics"
	"rpcextractor/internal/rpc"
	logx "rpcextractor/pkg/logx"
)

func main() {
	var cfgPath string
	flag.StringVar(&cfgPath, "config", "./config.yaml", "path to config file (yaml or json)")
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	mgr := config.NewManager(cfgPath)
	cfg, err := mgr.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "fatal: load config:", err)
		os.Exit(1)
	}
	if err := config.Validate(cfg); err != nil {
		fmt.Fprintln(os.Stderr, "fatal: invalid config:", err)
		os.Exit(1)
	}

	logsvc, log := logx.New(toLogxConfig(cfg.Logging))
	defer logsvc.Close()

	cat := catalog.New(cfg.Extractor)
	if cat.EnabledCount() == 0 {
		log.Warn("all rpc methods disabled; extractor will only serve metrics")
	}

	client, err := rpc.New(cfg.RPC, log.With(logx.String("comp", "rpc")))
	if err != nil {
		log.Error("rpc client setup failed", logx.Err(err))
		os.Exit(1)
	}

	nc, err := bus.Connect(cfg.Nats, log.With(logx.String("comp", "nats")))
	if err != nil {
		log.Error("nats connect failed", logx.Err(err))
		os.Exit(1)
	}
	pub := bus.NewPublisher(nc, log.With(logx.String("comp", "nats")))

	rec := metrics.NewRecorder()
	msrv := metrics.NewServer(cfg.Metrics.Address, rec, log.With(logx.String("comp", "metrics")))
	if err := msrv.Start(); err != nil {
		log.Error("metrics listen failed", logx.String("addr", cfg.Metrics.Address), logx.Err(err))
		os.Exit(1)
	}

	// Hot reload: logging applies live, everything else needs a restart.
	mgr.SetLogger(log.With(logx.String("comp", "config")))
	mgr.SetValidator(func(_ context.Context, c *config.Config) error { return config.Validate(c) })
	go func() { _ = mgr.Watch(ctx) }()
	sub := mgr.Subscribe(4)
	defer mgr.Unsubscribe(sub)
	go func() {
		prev := cfg
		for c := range sub {
			changed, attrs := config.SummarizeChange(prev, c)
			if len(changed) == 0 {
				continue
			}
			log.Info("config changed", append(attrs, logx.Any("sections", changed))...)
			logsvc.Apply(toLogxConfig(c.Logging))
			if config.RequiresRestart(changed) {
				log.Warn("config changes take effect after restart", logx.Any("sections", changed))
			}
			prev = c
		}
	}()

	_, _ = daemon.SdNotify(false, daemon.SdNotifyReady)

	svc := extractor.New(cat, client, pub, rec, cfg.Extractor.IntervalDuration(), log.With(logx.String("comp", "extractor")))
	if err := svc.Run(ctx); err != nil {
		log.Error("extractor failed", logx.Err(err))
	}

	_, _ = daemon.SdNotify(false, daemon.SdNotifyStopping)

	msrv.Stop(context.Background())
	// Flush anything the NATS client still has buffered before closing.
	if err := nc.Drain(); err != nil {
		log.Warn("nats drain", logx.Err(err))
	}
}

func toLogxConfig(c config.LoggingConfig) logx.Config {
	return logx.Config{
		Level:   c.Level,
		Console: c.Console,
		File:    logx.FileConfig{Enabled: c.File.Enabled, Path: c.File.Path},
	}
}
