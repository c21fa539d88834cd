package main

import (
	"context"
	"strings"

	gconfig "PPClient/global/config"
	"PPClient/module/chat/reconcile"
	"PPClient/service/natsx"
	"PPClient/service/storage"
	rstore "PPClient/service/storage/redis"
	"PPClient/service/storage/sqlite"
	"PPClient/tools/errs"

	"go.uber.org/zap"
)

type closer func() error

func nopCloser() error { return nil }

// openKeyStore opens the identity backend named by ic.Store.
func openKeyStore(ctx context.Context, ic gconfig.IdentityConfig) (storage.KeyStore, closer, error) {
	switch ic.Store {
	case gconfig.StoreMemory:
		return storage.NewMemory(), nopCloser, nil
	case gconfig.StoreRedis:
		s, err := rstore.Open(ctx, rstore.Config{
			Addr:     ic.Redis.Addr,
			Password: ic.Redis.Password,
			DB:       ic.Redis.DB,
		})
		if err != nil {
			return nil, nil, errs.ErrIdentityStore.WrapMsg("open redis", "addr", ic.Redis.Addr, "err", err)
		}
		return s, s.Close, nil
	case gconfig.StoreSQLite:
		s, err := sqlite.Open(ctx, ic.SQLite.Path)
		if err != nil {
			return nil, nil, errs.ErrIdentityStore.WrapMsg("open sqlite", "path", ic.SQLite.Path, "err", err)
		}
		return s, s.Close, nil
	}
	return nil, nil, errs.ErrConfig.WrapMsg("unknown identity store", "store", ic.Store)
}

// openNotifier always logs; with NATS servers configured it also publishes.
func openNotifier(nc gconfig.NatsConfig, log *zap.Logger) (reconcile.Notifier, closer, error) {
	local := reconcile.LogNotifier{Log: log.Named("notify")}
	if len(nc.Servers) == 0 {
		return local, nopCloser, nil
	}
	cli, err := natsx.NewNatsxClient(natsx.NatsxConfig{
		Servers: nc.Servers,
		Name:    nc.Name,
	})
	if err != nil {
		return nil, nil, errs.WrapMsg(err, "connect nats", "servers", strings.Join(nc.Servers, ","))
	}
	pub := natsx.NewNotifier(cli, nc.Subject, log.Named("natsx"))
	return reconcile.MultiNotifier{local, pub}, cli.Close, nil
}
