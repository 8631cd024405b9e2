package moderation

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"emperror.dev/errors"
	"github.com/volatiletech/null/v8"

	"github.com/commune-gg/commune/common"
)

var logger = common.GetPluginLogger(&Plugin{})

type Plugin struct{}

func (p *Plugin) PluginInfo() *common.PluginInfo {
	return &common.PluginInfo{
		Name:     "Moderation",
		SysName:  "moderation",
		Category: common.PluginCategoryModeration,
	}
}

func RegisterPlugin() {
	common.RegisterDBSchemas("moderation", DBSchemas...)
	common.RegisterPlugin(&Plugin{})
}

const (
	StatusOpen     = "open"
	StatusResolved = "resolved"
	StatusRejected = "rejected"
)

// Flaggable content kinds
const (
	TargetPost    = "post"
	TargetEvent   = "event"
	TargetMessage = "message"
)

var (
	ErrNotFound       = errors.Sentinel("flag not found")
	ErrAlreadyClosed  = errors.Sentinel("flag already handled")
	ErrReasonRequired = errors.Sentinel("reason is required")
	ErrBadTargetKind  = errors.Sentinel("unknown target kind")
)

type Flag struct {
	ID          int64 `json:"id"`
	CommunityID int64 `json:"community_id"`

	TargetKind string `json:"target_kind"`
	TargetID   int64  `json:"target_id"`

	ReporterID int64  `json:"reporter_id"`
	Reason     string `json:"reason"`

	Status string `json:"status"`

	CreatedAt  time.Time  `json:"created_at"`
	ResolvedAt null.Time  `json:"resolved_at,omitempty"`
	ResolvedBy null.Int64 `json:"resolved_by,omitempty"`
}

const flagColumns = `id, community_id, target_kind, target_id, reporter_id, reason, status, created_at, resolved_at, resolved_by`

func scanFlag(row interface{ Scan(...interface{}) error }) (*Flag, error) {
	f := &Flag{}
	err := row.Scan(&f.ID, &f.CommunityID, &f.TargetKind, &f.TargetID, &f.ReporterID,
		&f.Reason, &f.Status, &f.CreatedAt, &f.ResolvedAt, &f.ResolvedBy)
	if err != nil {
		return nil, err
	}

	return f, nil
}

func validTargetKind(kind string) bool {
	switch kind {
	case TargetPost, TargetEvent, TargetMessage:
		return true
	}

	return false
}

// FlagContent opens a moderation flag against a piece of community content.
// Any member can report, handling is admin only.
func FlagContent(ctx context.Context, communityID, reporterID int64, targetKind string, targetID int64, reason string) (*Flag, error) {
	if !validTargetKind(targetKind) {
		return nil, ErrBadTargetKind
	}

	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, ErrReasonRequired
	}

	f := &Flag{
		ID:          common.GenID(),
		CommunityID: communityID,

		TargetKind: targetKind,
		TargetID:   targetID,

		ReporterID: reporterID,
		Reason:     reason,

		Status:    StatusOpen,
		CreatedAt: time.Now(),
	}

	const q = `INSERT INTO moderation_flags (` + flagColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NULL, NULL)`
	_, err := common.PQ.ExecContext(ctx, q, f.ID, f.CommunityID, f.TargetKind, f.TargetID,
		f.ReporterID, f.Reason, f.Status, f.CreatedAt)
	if err != nil {
		return nil, errors.WithStackIf(err)
	}

	return f, nil
}

func Get(ctx context.Context, flagID int64) (*Flag, error) {
	f, err := scanFlag(common.PQ.QueryRowContext(ctx,
		`SELECT `+flagColumns+` FROM moderation_flags WHERE id = $1`, flagID))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, errors.WithStackIf(err)
	}

	return f, nil
}

// closeFlag transitions an open flag to resolved or rejected, both terminal.
func closeFlag(ctx context.Context, flagID, adminID int64, status string) (*Flag, error) {
	const q = `UPDATE moderation_flags SET status = $2, resolved_at = now(), resolved_by = $3
		WHERE id = $1 AND status = 'open'
		RETURNING ` + flagColumns

	f, err := scanFlag(common.PQ.QueryRowContext(ctx, q, flagID, status, adminID))
	if err != nil {
		if err == sql.ErrNoRows {
			// either missing or already handled, look it up to tell apart
			if _, gerr := Get(ctx, flagID); gerr == ErrNotFound {
				return nil, ErrNotFound
			}
			return nil, ErrAlreadyClosed
		}
		return nil, errors.WithStackIf(err)
	}

	return f, nil
}

func Resolve(ctx context.Context, flagID, adminID int64) (*Flag, error) {
	return closeFlag(ctx, flagID, adminID, StatusResolved)
}

func Reject(ctx context.Context, flagID, adminID int64) (*Flag, error) {
	return closeFlag(ctx, flagID, adminID, StatusRejected)
}

func queryFlags(ctx context.Context, where string, args ...interface{}) ([]*Flag, error) {
	rows, err := common.PQ.QueryContext(ctx, `SELECT `+flagColumns+` FROM moderation_flags `+where, args...)
	if err != nil {
		return nil, errors.WithStackIf(err)
	}
	defer rows.Close()

	result := make([]*Flag, 0)
	for rows.Next() {
		f, err := scanFlag(rows)
		if err != nil {
			return nil, errors.WithStackIf(err)
		}
		result = append(result, f)
	}

	return result, rows.Err()
}

// ListOpen returns the community's unhandled flags, oldest first so the
// queue drains in order.
func ListOpen(ctx context.Context, communityID int64) ([]*Flag, error) {
	return queryFlags(ctx, `WHERE community_id = $1 AND status = 'open' ORDER BY created_at ASC`, communityID)
}

// ListRecent returns all flags regardless of status, newest first.
func ListRecent(ctx context.Context, communityID int64, limit int) ([]*Flag, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}

	return queryFlags(ctx, `WHERE community_id = $1 ORDER BY created_at DESC LIMIT $2`, communityID, limit)
}

// Counts returns open and total flag counts since the cutoff, both feed the
// overview dashboard.
func Counts(ctx context.Context, communityID int64, since time.Time) (open int, total int, err error) {
	err = common.PQ.QueryRowContext(ctx,
		`SELECT COUNT(*) FILTER (WHERE status = 'open'), COUNT(*)
		FROM moderation_flags WHERE community_id = $1 AND created_at >= $2`, communityID, since).
		Scan(&open, &total)
	if err != nil {
		return 0, 0, errors.WithStackIf(err)
	}

	return open, total, nil
}
