package common

import (
	"time"

	"emperror.dev/errors"
	"github.com/mediocregopher/radix/v3"
)

var ErrMaxLockAttemptsExceeded = errors.Sentinel("max lock attempts exceeded")

// TryLockRedisKey attempts to lock the given key, with the lock expiring
// after ttlSeconds in case the holder never unlocks it.
func TryLockRedisKey(key string, ttlSeconds int) (bool, error) {
	var resp string
	err := RedisPool.Do(radix.FlatCmd(&resp, "SET", "lock:"+key, NodeID+"-"+StrID(time.Now().UnixNano()), "NX", "EX", ttlSeconds))
	if err != nil {
		return false, errors.WithStackIf(err)
	}

	return resp == "OK", nil
}

// BlockingLockRedisKey blocks until the key is locked or maxTryDuration has
// passed, in which case ErrMaxLockAttemptsExceeded is returned.
func BlockingLockRedisKey(key string, maxTryDuration time.Duration, ttlSeconds int) error {
	started := time.Now()
	sleepDur := time.Millisecond * 100
	maxSleep := time.Second

	for {
		if maxTryDuration != 0 && time.Since(started) > maxTryDuration {
			return ErrMaxLockAttemptsExceeded
		}

		locked, err := TryLockRedisKey(key, ttlSeconds)
		if err != nil {
			return err
		}

		if locked {
			return nil
		}

		time.Sleep(sleepDur)
		sleepDur *= 2
		if sleepDur > maxSleep {
			sleepDur = maxSleep
		}
	}
}

func UnlockRedisKey(key string) {
	RedisPool.Do(radix.Cmd(nil, "DEL", "lock:"+key))
}
