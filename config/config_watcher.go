package config

import (
	"context"
	"path/filepath"
	"sync"
	"time"

	gconfig "PPClient/global/config"
	"PPClient/logger"
	"PPClient/tools/errs"

	"github.com/fsnotify/fsnotify"
	"github.com/nacos-group/nacos-sdk-go/v2/clients"
	"github.com/nacos-group/nacos-sdk-go/v2/clients/config_client"
	"github.com/nacos-group/nacos-sdk-go/v2/common/constant"
	"github.com/nacos-group/nacos-sdk-go/v2/vo"
	"go.uber.org/zap"
)

// ReloadFunc receives a freshly loaded, validated config.
type ReloadFunc func(cfg *gconfig.Config)

const fileDebounce = 200 * time.Millisecond

// WatchFile reloads path whenever it changes until ctx is done. The parent
// directory is watched so editors that replace the file are handled.
func WatchFile(ctx context.Context, path string, onChange ReloadFunc) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return errs.Wrap(err)
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		_ = w.Close()
		return errs.Wrap(err)
	}
	if err := w.Add(filepath.Dir(abs)); err != nil {
		_ = w.Close()
		return errs.WrapMsg(err, "watch config dir", "path", abs)
	}

	log := logger.Named("config")
	go func() {
		defer w.Close()
		var (
			mu    sync.Mutex
			timer *time.Timer
		)
		reload := func() {
			cfg, err := gconfig.Load(abs)
			if err != nil {
				log.Warn("config reload rejected", zap.String("path", abs), zap.Error(err))
				return
			}
			log.Info("config reloaded", zap.String("path", abs))
			onChange(cfg)
		}
		for {
			select {
			case <-ctx.Done():
				mu.Lock()
				if timer != nil {
					timer.Stop()
				}
				mu.Unlock()
				return
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if filepath.Clean(ev.Name) != abs {
					continue
				}
				if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) {
					continue
				}
				mu.Lock()
				if timer != nil {
					timer.Stop()
				}
				timer = time.AfterFunc(fileDebounce, reload)
				mu.Unlock()
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				log.Warn("config watcher error", zap.Error(err))
			}
		}
	}()
	return nil
}

// NewNacosClient builds a config client for nc.
func NewNacosClient(nc gconfig.NacosConfig) (config_client.IConfigClient, error) {
	serverConfigs := []constant.ServerConfig{
		*constant.NewServerConfig(nc.Host, nc.Port),
	}
	clientConfig := constant.NewClientConfig(
		constant.WithNamespaceId(nc.Namespace),
		constant.WithTimeoutMs(5000),
		constant.WithNotLoadCacheAtStart(true),
		constant.WithLogLevel("warn"),
		constant.WithCacheDir("nacos/cache"),
		constant.WithLogDir("nacos/log"),
	)
	cli, err := clients.NewConfigClient(vo.NacosClientParam{
		ClientConfig:  clientConfig,
		ServerConfigs: serverConfigs,
	})
	if err != nil {
		return nil, errs.WrapMsg(err, "create nacos config client", "host", nc.Host)
	}
	return cli, nil
}

// WatchNacos applies the remote YAML document over base, then keeps
// listening for changes until ctx is done. Each change is parsed over a copy
// of base so keys removed remotely fall back to local values.
func WatchNacos(ctx context.Context, cli config_client.IConfigClient, base *gconfig.Config, onChange ReloadFunc) error {
	nc := base.Nacos
	log := logger.Named("config")
	apply := func(data string) {
		next := *base
		if err := gconfig.Parse([]byte(data), &next); err != nil {
			log.Warn("nacos config rejected", zap.String("dataId", nc.DataID), zap.Error(err))
			return
		}
		if err := next.Validate(); err != nil {
			log.Warn("nacos config rejected", zap.String("dataId", nc.DataID), zap.Error(err))
			return
		}
		log.Info("nacos config applied", zap.String("dataId", nc.DataID), zap.String("group", nc.Group))
		onChange(&next)
	}

	content, err := cli.GetConfig(vo.ConfigParam{DataId: nc.DataID, Group: nc.Group})
	if err != nil {
		return errs.WrapMsg(err, "get nacos config", "dataId", nc.DataID)
	}
	if content != "" {
		apply(content)
	}

	param := vo.ConfigParam{
		DataId: nc.DataID,
		Group:  nc.Group,
		OnChange: func(namespace, group, dataId, data string) {
			apply(data)
		},
	}
	if err := cli.ListenConfig(param); err != nil {
		return errs.WrapMsg(err, "listen nacos config", "dataId", nc.DataID)
	}
	go func() {
		<-ctx.Done()
		_ = cli.CancelListenConfig(vo.ConfigParam{DataId: nc.DataID, Group: nc.Group})
	}()
	return nil
}
