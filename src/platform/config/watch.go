package config

import (
	"fatorch/src/platform/validation"

	"github.com/creasty/defaults"
	"github.com/fsnotify/fsnotify"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	"github.com/rs/zerolog"
	"github.com/samber/oops"
)

// WatchSchedulerOverrides watches path for writes and, on every change,
// re-reads just the "scheduler" section and hands the result to onChange.
// This is the live-tuning path: an operator can edit the YAML file next to
// the running process without a restart, rather than going through a full
// config reload (which would also re-validate and re-apply every other
// section). The composition root applies only the tolerances, stabilization
// window and DI/DO settle delay from the reloaded section; the concurrency
// cap (Cmax) and the retry budget are not changed by a reload.
//
// The returned stop func closes the underlying watcher; callers should
// defer it or tie it to the process's ServiceLifecycle.Stop.
func WatchSchedulerOverrides(path string, onChange func(SchedulerConfig), logger zerolog.Logger) (func(), error) {
	errorb := oops.In("config")

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, errorb.Wrapf(err, "failed to create config file watcher for '%s'", path)
	}
	if err := watcher.Add(path); err != nil {
		_ = watcher.Close()
		return nil, errorb.Wrapf(err, "failed to watch config file '%s'", path)
	}

	go func() {
		for {
			select {
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
					continue
				}
				cfg, err := reloadSchedulerSection(path)
				if err != nil {
					logger.Error().Err(err).Str("path", path).Msg("failed to reload scheduler config overrides")
					continue
				}
				onChange(cfg)
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				logger.Error().Err(err).Str("path", path).Msg("config file watcher error")
			}
		}
	}()

	return func() { _ = watcher.Close() }, nil
}

func reloadSchedulerSection(path string) (SchedulerConfig, error) {
	errorb := oops.In("config")

	var cfg SchedulerConfig
	if err := defaults.Set(&cfg); err != nil {
		return SchedulerConfig{}, errorb.Wrapf(err, "failed to set scheduler config defaults")
	}

	k := koanf.NewWithConf(koanf.Conf{Delim: ".", StrictMerge: true})
	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		return SchedulerConfig{}, errorb.Wrapf(err, "failed to reload config file '%s'", path)
	}
	if err := k.Unmarshal("scheduler", &cfg); err != nil {
		return SchedulerConfig{}, errorb.Wrapf(err, "failed to unmarshal scheduler config section")
	}

	if err := validation.Instance.Struct(&cfg); err != nil {
		return SchedulerConfig{}, errorb.Wrapf(err, "failed to validate reloaded scheduler config")
	}
	return cfg, nil
}
