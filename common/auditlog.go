package common

import (
	"fmt"
	"time"

	"github.com/mediocregopher/radix/v3"
	jsoniter "github.com/json-iterator/go"
)

// Audit log entries record admin actions per community (flag resolved,
// event deleted, intent converted and so on) for the moderation dashboard.
// They live in a capped redis list, the last 100 actions per community.

type AuditLogEntry struct {
	Timestamp int64  `json:"ts"`
	UserID    int64  `json:"user_id"`
	Action    string `json:"action"`

	TimestampString string `json:"-"`
}

func AddAuditLogEntry(userID, communityID int64, args ...interface{}) {
	entry := &AuditLogEntry{
		Timestamp: time.Now().Unix(),
		UserID:    userID,
		Action:    fmt.Sprint(args...),
	}

	serialized, err := jsoniter.Marshal(entry)
	if err != nil {
		logger.WithError(err).Error("Failed marshalling audit log entry")
		return
	}

	key := "audit_logs:" + StrID(communityID)
	err = RedisPool.Do(radix.Cmd(nil, "LPUSH", key, string(serialized)))
	RedisPool.Do(radix.Cmd(nil, "LTRIM", key, "0", "100"))
	if err != nil {
		logger.WithError(err).WithField("community", communityID).Error("Failed updating audit logs")
	}
}

func GetAuditLogEntries(communityID int64) ([]*AuditLogEntry, error) {
	var entriesRaw [][]byte
	err := RedisPool.Do(radix.Cmd(&entriesRaw, "LRANGE", "audit_logs:"+StrID(communityID), "0", "-1"))
	if err != nil {
		return nil, err
	}

	result := make([]*AuditLogEntry, len(entriesRaw))

	for k, entryRaw := range entriesRaw {
		var decoded *AuditLogEntry
		err = jsoniter.Unmarshal(entryRaw, &decoded)
		if err != nil {
			result[k] = &AuditLogEntry{Action: "Failed decoding"}
			logger.WithError(err).WithField("community", communityID).WithField("audit_log_entry", k).Error("Failed decoding audit log entry")
		} else {
			decoded.TimestampString = time.Unix(decoded.Timestamp, 0).Format(time.Stamp)
			result[k] = decoded
		}
	}
	return result, nil
}
