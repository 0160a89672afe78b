package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"learncal/internal/archive"
	"learncal/internal/calendar"
	"learncal/internal/config"
	"learncal/internal/ics"
	"learncal/internal/jobs"
	appLog "learncal/internal/log"
	"learncal/internal/metrics"
	"learncal/internal/web"
)

const version = "0.1.0"

type flagConfig struct {
	configPath string
	envFile    string
	listen     string
	once       bool
	dump       bool
}

func main() {
	flags := parseFlags()

	conf, err := config.Load(flags.configPath)
	if err != nil {
		appLog.Error("failed to load config", err, "config_path", flags.configPath)
		os.Exit(1)
	}
	if err := conf.ApplyEnv(flags.envFile); err != nil {
		appLog.Error("failed to apply environment", err, "env_file", flags.envFile)
		os.Exit(1)
	}
	// CLI --listen overrides config and environment.
	if flags.listen != "" {
		conf.Listen = flags.listen
	}
	appLog.SetLevel(appLog.ParseLevel(conf.LogLevel))

	appLog.Info("learncal starting", "version", version)
	appLog.Info("effective config",
		"listen", conf.Listen,
		"timezone", conf.Preferences.Timezone,
		"snapshot_path", conf.SnapshotPath,
		"snapshot_cron", conf.SnapshotCron,
		"refresh_cron", conf.RefreshCron,
		"subscriptions", len(conf.Subscriptions),
		"once", flags.once,
		"dump", flags.dump,
	)

	cal := calendar.New(conf.Preferences)
	if n, err := archive.LoadFile(conf.SnapshotPath, cal); err != nil {
		appLog.Error("failed to load snapshot", err, "path", conf.SnapshotPath)
		os.Exit(1)
	} else if n > 0 {
		appLog.Info("snapshot loaded", "path", conf.SnapshotPath, "events", n)
	}

	var mu sync.RWMutex
	m := metrics.New()
	runner := jobs.NewRunner(cal, &mu, jobs.Options{
		Fetcher:       ics.NewFetcher(conf.CacheDir, nil),
		Subscriptions: conf.Subscriptions,
		SnapshotPath:  conf.SnapshotPath,
		Metrics:       m,
	})

	// Root context with cancellation on SIGINT/SIGTERM.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if flags.dump {
		if err := archive.Export(cal, os.Stdout); err != nil {
			appLog.Error("dump failed", err)
			os.Exit(1)
		}
		return
	}

	if flags.once {
		code := 0
		if err := runner.RefreshSubscriptions(ctx); err != nil {
			code = 1
		}
		if err := runner.Snapshot(); err != nil {
			code = 1
		}
		os.Exit(code)
	}

	if err := runner.Schedule(conf.RefreshCron, conf.SnapshotCron); err != nil {
		appLog.Error("failed to schedule jobs", err)
		os.Exit(1)
	}

	srv := web.NewServer(conf, cal, web.Options{
		ConfigPath: flags.configPath,
		Lock:       &mu,
		Metrics:    m,
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.ListenAndServe(gctx)
	})
	g.Go(func() error {
		// Pull subscriptions right away instead of waiting for the first tick.
		_ = runner.RefreshSubscriptions(gctx)
		runner.Start()
		<-gctx.Done()

		stopCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		runner.Stop(stopCtx)
		return nil
	})

	err = g.Wait()
	if err != nil {
		appLog.Error("server stopped with error", err)
	}

	if serr := runner.Snapshot(); serr != nil && err == nil {
		err = serr
	}
	appLog.Info("learncal exiting")
	if err != nil {
		os.Exit(1)
	}
}

func parseFlags() flagConfig {
	var cfg flagConfig

	flag.StringVar(&cfg.configPath, "config", "./learncal.yaml", "Path to config file")
	flag.StringVar(&cfg.envFile, "env", ".env", "Optional dotenv file with LEARNCAL_* overrides")
	flag.StringVar(&cfg.listen, "listen", "", "HTTP listen address (overrides config if set)")
	flag.BoolVar(&cfg.once, "once", false, "Refresh subscriptions and write one snapshot, then exit")
	flag.BoolVar(&cfg.dump, "dump", false, "Print the stored calendar as JSON and exit")

	flag.Parse()

	return cfg
}
