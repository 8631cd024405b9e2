package config

import (
	"strings"

	"github.com/mediocregopher/radix/v3"
	"github.com/sirupsen/logrus"
)

// RedisConfigStore reads options from the "commune_config" redis hash,
// letting operators change settings without restarting every node.
type RedisConfigStore struct {
	Pool *radix.Pool
}

func (rs *RedisConfigStore) GetValue(key string) interface{} {
	prefixStripped := strings.TrimPrefix(key, "commune.")

	var v string
	err := rs.Pool.Do(radix.Cmd(&v, "HGET", "commune_config", prefixStripped))
	if err != nil {
		logrus.WithError(err).Error("[redis_config_source] failed retrieving value")
		return nil
	}

	if v == "" {
		return nil
	}

	return v
}

func (rs *RedisConfigStore) SaveValue(key, value string) error {
	prefixStripped := strings.TrimPrefix(key, "commune.")

	return rs.Pool.Do(radix.Cmd(nil, "HSET", "commune_config", prefixStripped, value))
}

func (rs *RedisConfigStore) Name() string {
	return "redis"
}
