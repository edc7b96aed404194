package ioc

import (
	"gitee.com/flycash/notification-tracker/internal/pkg/id"
	"gitee.com/flycash/notification-tracker/internal/pkg/lock"
	"gitee.com/flycash/notification-tracker/internal/pkg/retry"
	"gitee.com/flycash/notification-tracker/internal/repository"
	"gitee.com/flycash/notification-tracker/internal/service/preference"
	"gitee.com/flycash/notification-tracker/internal/service/tracker"
	"github.com/gotomicro/ego/core/econf"
	ca "github.com/patrickmn/go-cache"
)

func InitTrackerConfig() tracker.Config {
	cfg := tracker.Config{
		Retry: defaultRetryConfig(),
	}
	if err := econf.UnmarshalKey("tracker", &cfg); err != nil {
		panic(err)
	}
	return cfg
}

func InitDedupIndex(repo repository.MessageRepository, c *ca.Cache, cfg tracker.Config) tracker.DedupIndex {
	w, err := cfg.Window()
	if err != nil {
		panic(err)
	}
	return tracker.NewCachedIndex(tracker.NewRepositoryIndex(repo, w), repo, c)
}

// InitTracker 外层是链路追踪，内层是指标
func InitTracker(repo repository.MessageRepository, index tracker.DedupIndex, locker lock.KeyedLocker,
	prefs preference.Service, ids id.Generator, cfg tracker.Config,
) tracker.Service {
	svc := tracker.NewService(repo, index, locker, prefs, ids, cfg)
	return tracker.NewTracingService(tracker.NewMetricsService(svc, nil))
}

func InitPreferenceService(repo repository.PreferenceRepository, locker lock.KeyedLocker) preference.Service {
	cfg := defaultRetryConfig()
	if err := econf.UnmarshalKey("preference.retry", &cfg); err != nil {
		panic(err)
	}
	return preference.NewService(repo, preference.NewEngine(), locker, cfg)
}

func defaultRetryConfig() retry.Config {
	return retry.Config{
		Type: "exponential",
		ExponentialBackoff: &retry.ExponentialBackoffConfig{
			InitialInterval: 10,
			MaxInterval:     1000,
			MaxRetries:      5,
		},
	}
}
