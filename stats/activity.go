package stats

import (
	"strconv"
	"strings"
	"sync"
	"time"

	"emperror.dev/errors"
	"github.com/mediocregopher/radix/v3"

	"github.com/commune-gg/commune/common"
	"github.com/commune-gg/commune/common/backgroundworkers"
	"github.com/commune-gg/commune/common/config"
)

// Lightweight activity counters. Hot-path increments go to redis hashes,
// a background worker folds them into postgres hourly.

var confEnableActivity = config.RegisterOption("commune.enable_activity_tracking", "Enable community activity tracking", true)

// RecordActivity bumps the named counter for the community, errors are
// logged and swallowed, the caller never fails on tracking.
func RecordActivity(communityID int64, plugin common.Plugin, name string) {
	if !confEnableActivity.GetBool() {
		return
	}

	key := "activity_counters." + plugin.PluginInfo().SysName + "." + name
	err := common.RedisPool.Do(radix.FlatCmd(nil, "HINCRBY", key, communityID, 1))
	if err != nil {
		logger.WithError(err).WithField("community", communityID).WithField("counter", key).Error("Failed updating activity counter")
	}
}

var _ backgroundworkers.BackgroundWorkerPlugin = (*Plugin)(nil)

func (p *Plugin) RunBackgroundWorker() {
	ticker := time.NewTicker(time.Minute * 60)
	for {
		select {
		case <-ticker.C:
			started := time.Now()
			err := p.flushActivityCounters()
			if err != nil {
				logger.WithError(err).Error("failed flushing activity counters")
			}
			logger.Infof("Took %s to flush activity counters", time.Since(started))
		case wg := <-p.stopWorkers:
			ticker.Stop()
			wg.Done()
			return
		}
	}
}

func (p *Plugin) StopBackgroundWorker(wg *sync.WaitGroup) {
	p.stopWorkers <- wg
}

type activityBucket struct {
	CommunityID int64
	Plugin      string
	Name        string
	Count       int
}

// flushActivityCounters drains the redis counter hashes into the
// community_activity table. Each hash is renamed aside first so increments
// arriving mid flush land in a fresh hash instead of getting lost.
func (p *Plugin) flushActivityCounters() error {
	var compiled []*activityBucket

	err := common.RedisPool.Do(radix.WithConn("", func(c radix.Conn) error {
		s := radix.NewScanner(c, radix.ScanOpts{
			Command: "SCAN",
			Pattern: "activity_counters.*",
		})

		var key string
		for s.Next(&key) {
			err := c.Do(radix.Cmd(nil, "RENAME", key, "temp_"+key))
			if err != nil {
				return errors.WithStackIf(err)
			}

			var rawCounts map[string]string
			err = c.Do(radix.Cmd(&rawCounts, "HGETALL", "temp_"+key))
			if err != nil {
				return errors.WithStackIf(err)
			}

			split := strings.Split(key, ".")
			if len(split) < 3 {
				return errors.New("malformed activity counter key: " + key)
			}

			for communityStr, countStr := range rawCounts {
				communityID, _ := strconv.ParseInt(communityStr, 10, 64)
				count, _ := strconv.Atoi(countStr)

				compiled = append(compiled, &activityBucket{
					CommunityID: communityID,
					Plugin:      split[1],
					Name:        split[2],
					Count:       count,
				})
			}

			err = c.Do(radix.Cmd(nil, "DEL", "temp_"+key))
			if err != nil {
				return errors.WithStackIf(err)
			}
		}

		return s.Close()
	}))
	if err != nil {
		return errors.WithStackIf(err)
	}

	const q = `INSERT INTO community_activity (community_id, created_at, plugin, name, count)
	VALUES ($1, now(), $2, $3, $4)`

	for _, entry := range compiled {
		_, err := common.PQ.Exec(q, entry.CommunityID, entry.Plugin, entry.Name, entry.Count)
		if err != nil {
			return errors.WithStackIf(err)
		}
	}

	return nil
}
