package common

import (
	"os"

	"github.com/mediocregopher/radix/v3"
)

// InitTestRedis connects the shared redis pool to the test redis server,
// called from TestMain in packages whose tests touch redis.
func InitTestRedis() error {
	addr := os.Getenv("COMMUNE_TEST_REDIS_ADDR")
	if addr == "" {
		addr = "localhost:6379"
	}

	err := connectRedis(addr)
	if err != nil {
		return err
	}

	return RedisPool.Do(radix.Cmd(nil, "PING"))
}
