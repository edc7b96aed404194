package ioc

import (
	"time"

	"github.com/gotomicro/ego/core/econf"
	ca "github.com/patrickmn/go-cache"
)

// InitGoCache stamp 到消息 ID 的本地缓存
func InitGoCache() *ca.Cache {
	type Config struct {
		Expiration      time.Duration `yaml:"expiration"`
		CleanupInterval time.Duration `yaml:"cleanupInterval"`
	}
	cfg := Config{
		Expiration:      10 * time.Minute,
		CleanupInterval: time.Minute,
	}
	if err := econf.UnmarshalKey("tracker.cache", &cfg); err != nil {
		panic(err)
	}
	return ca.New(cfg.Expiration, cfg.CleanupInterval)
}
