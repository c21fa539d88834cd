package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"PPClient/config"
	gconfig "PPClient/global/config"
	"PPClient/logger"
	"PPClient/module/session"
	"PPClient/service/status"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newRunCmd(f *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Connect and keep the chat session in sync until interrupted",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(f)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return run(ctx, f.configPath, cfg)
		},
	}
}

func run(ctx context.Context, configPath string, cfg *gconfig.Config) error {
	log := logger.Named("ppclient")
	defer logger.Sync()

	kv, closeKV, err := openKeyStore(ctx, cfg.Identity)
	if err != nil {
		return err
	}
	defer func() { _ = closeKV() }()

	notifier, closeNotifier, err := openNotifier(cfg.Nats, log)
	if err != nil {
		return err
	}
	defer func() { _ = closeNotifier() }()

	sess, err := session.New(session.Deps{
		Config:   cfg,
		KeyStore: kv,
		Notifier: notifier,
		Logger:   log.Named("session"),
	})
	if err != nil {
		return err
	}
	defer sess.Close()
	if err := sess.Start(ctx); err != nil {
		return err
	}

	var srv *status.Server
	if cfg.Status.Addr != "" {
		srv, err = status.Start(sess, status.Options{
			Addr:        cfg.Status.Addr,
			Token:       cfg.Status.Token,
			AllowRemote: cfg.Status.AllowRemote,
			Logger:      log.Named("status"),
		})
		if err != nil {
			return err
		}
		defer func() {
			sctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
			defer cancel()
			_ = srv.Shutdown(sctx)
		}()
	}

	reload := func(next *gconfig.Config) {
		sess.ApplyConfig(next)
		if srv != nil {
			srv.SetAllowRemote(next.Status.AllowRemote)
		}
	}
	if configPath != "" {
		if err := config.WatchFile(ctx, configPath, reload); err != nil {
			log.Warn("config file watch disabled", zap.Error(err))
		}
	}
	if cfg.Nacos.Host != "" {
		cli, err := config.NewNacosClient(cfg.Nacos)
		if err != nil {
			log.Warn("nacos disabled", zap.Error(err))
		} else if err := config.WatchNacos(ctx, cli, cfg, reload); err != nil {
			log.Warn("nacos watch failed", zap.Error(err))
		}
	}

	<-ctx.Done()
	log.Info("shutting down", zap.Any("status", sess.Status()))
	return nil
}
