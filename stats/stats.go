// Package stats computes the dashboard numbers: per community overviews,
// AI operation success rates and trending topics over a handful of fixed
// time windows.
package stats

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"emperror.dev/errors"

	"github.com/commune-gg/commune/common"
)

var logger = common.GetPluginLogger(&Plugin{})

type Plugin struct {
	stopWorkers chan *sync.WaitGroup
}

func (p *Plugin) PluginInfo() *common.PluginInfo {
	return &common.PluginInfo{
		Name:     "Stats",
		SysName:  "stats",
		Category: common.PluginCategoryCore,
	}
}

func RegisterPlugin() {
	common.RegisterDBSchemas("stats", DBSchemas...)
	common.RegisterPlugin(&Plugin{
		stopWorkers: make(chan *sync.WaitGroup),
	})
}

var ErrBadWindow = errors.Sentinel("unknown stats window")

// Window is one of the fixed dashboard time windows.
type Window string

const (
	WindowDay     Window = "24h"
	Window7Days   Window = "7d"
	Window30Days  Window = "30d"
	Window90Days  Window = "90d"
	DefaultWindow        = Window7Days
)

var windowDurations = map[Window]time.Duration{
	WindowDay:    time.Hour * 24,
	Window7Days:  time.Hour * 24 * 7,
	Window30Days: time.Hour * 24 * 30,
	Window90Days: time.Hour * 24 * 90,
}

// ParseWindow maps the query param form to a Window, empty input gets the
// default.
func ParseWindow(s string) (Window, error) {
	if s == "" {
		return DefaultWindow, nil
	}

	w := Window(s)
	if _, ok := windowDurations[w]; !ok {
		return "", ErrBadWindow
	}

	return w, nil
}

// Cutoff returns the inclusive lower bound of the window, measured from now.
func (w Window) Cutoff() time.Time {
	d, ok := windowDurations[w]
	if !ok {
		d = windowDurations[DefaultWindow]
	}

	return time.Now().Add(-d)
}

type Overview struct {
	CommunityID int64  `json:"community_id"`
	Window      Window `json:"window"`

	EventsCreated int            `json:"events_created"`
	RSVPsByStatus map[string]int `json:"rsvps_by_status"`
	PostsCreated  int            `json:"posts_created"`

	OpenFlags  int `json:"open_flags"`
	TotalFlags int `json:"total_flags"`
}

// CommunityOverview tallies the community's activity inside the window.
// Rows are fetched raw and grouped here rather than in sql, the dashboards
// ask for several groupings of the same rows.
func CommunityOverview(ctx context.Context, communityID int64, window Window) (*Overview, error) {
	cutoff := window.Cutoff()

	ov := &Overview{
		CommunityID:   communityID,
		Window:        window,
		RSVPsByStatus: make(map[string]int),
	}

	err := common.PQ.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM events WHERE community_id = $1 AND created_at >= $2 AND deleted_at IS NULL`,
		communityID, cutoff).Scan(&ov.EventsCreated)
	if err != nil {
		return nil, errors.WithStackIf(err)
	}

	rows, err := common.PQ.QueryContext(ctx,
		`SELECT r.status FROM event_rsvps r
		JOIN events e ON e.id = r.event_id
		WHERE e.community_id = $1 AND r.created_at >= $2`, communityID, cutoff)
	if err != nil {
		return nil, errors.WithStackIf(err)
	}
	defer rows.Close()

	for rows.Next() {
		var status string
		if err := rows.Scan(&status); err != nil {
			return nil, errors.WithStackIf(err)
		}
		ov.RSVPsByStatus[status]++
	}
	if err := rows.Err(); err != nil {
		return nil, errors.WithStackIf(err)
	}

	err = common.PQ.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM posts WHERE community_id = $1 AND created_at >= $2 AND deleted_at IS NULL`,
		communityID, cutoff).Scan(&ov.PostsCreated)
	if err != nil {
		return nil, errors.WithStackIf(err)
	}

	err = common.PQ.QueryRowContext(ctx,
		`SELECT COUNT(*) FILTER (WHERE status = 'open'), COUNT(*)
		FROM moderation_flags WHERE community_id = $1 AND created_at >= $2`, communityID, cutoff).
		Scan(&ov.OpenFlags, &ov.TotalFlags)
	if err != nil {
		return nil, errors.WithStackIf(err)
	}

	return ov, nil
}

type AIOpStats struct {
	Operation   string  `json:"operation"`
	Total       int     `json:"total"`
	Successes   int     `json:"successes"`
	SuccessRate float64 `json:"success_rate"`
}

// AIOpsReport derives per operation success rates from the raw ai_operations
// rows inside the window. Operations with zero calls don't appear.
func AIOpsReport(ctx context.Context, communityID int64, window Window) ([]*AIOpStats, error) {
	rows, err := common.PQ.QueryContext(ctx,
		`SELECT operation, status FROM ai_operations WHERE community_id = $1 AND created_at >= $2`,
		communityID, window.Cutoff())
	if err != nil {
		return nil, errors.WithStackIf(err)
	}
	defer rows.Close()

	byOp := make(map[string]*AIOpStats)
	for rows.Next() {
		var operation, status string
		if err := rows.Scan(&operation, &status); err != nil {
			return nil, errors.WithStackIf(err)
		}

		entry := byOp[operation]
		if entry == nil {
			entry = &AIOpStats{Operation: operation}
			byOp[operation] = entry
		}

		entry.Total++
		if status == "ok" {
			entry.Successes++
		}
	}
	if err := rows.Err(); err != nil {
		return nil, errors.WithStackIf(err)
	}

	result := make([]*AIOpStats, 0, len(byOp))
	for _, entry := range byOp {
		entry.SuccessRate = float64(entry.Successes) / float64(entry.Total)
		result = append(result, entry)
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].Operation < result[j].Operation
	})

	return result, nil
}

// TrendingKeywords is the fixed vocabulary the trending ranking matches
// against post contents.
var TrendingKeywords = []string{
	"meetup", "workshop", "gaming", "music", "sports", "food",
	"art", "tech", "book", "movie", "outdoors", "volunteer",
}

type Topic struct {
	Keyword string `json:"keyword"`
	Count   int    `json:"count"`
}

// TrendingTopics ranks the fixed keyword list by naive case insensitive
// substring occurrence in the community's recent posts. Keywords with zero
// hits are dropped, ties keep vocabulary order.
func TrendingTopics(ctx context.Context, communityID int64, window Window) ([]*Topic, error) {
	rows, err := common.PQ.QueryContext(ctx,
		`SELECT content FROM posts WHERE community_id = $1 AND created_at >= $2 AND deleted_at IS NULL`,
		communityID, window.Cutoff())
	if err != nil {
		return nil, errors.WithStackIf(err)
	}
	defer rows.Close()

	var contents []string
	for rows.Next() {
		var content string
		if err := rows.Scan(&content); err != nil {
			return nil, errors.WithStackIf(err)
		}
		contents = append(contents, strings.ToLower(content))
	}
	if err := rows.Err(); err != nil {
		return nil, errors.WithStackIf(err)
	}

	return TallyTopics(contents), nil
}

// TallyTopics counts keyword occurrences across the given lowercased texts.
func TallyTopics(lowered []string) []*Topic {
	result := make([]*Topic, 0)
	for _, keyword := range TrendingKeywords {
		count := 0
		for _, content := range lowered {
			count += strings.Count(content, keyword)
		}

		if count > 0 {
			result = append(result, &Topic{Keyword: keyword, Count: count})
		}
	}

	sort.SliceStable(result, func(i, j int) bool {
		return result[i].Count > result[j].Count
	})

	return result
}

type PlatformOverview struct {
	Window Window `json:"window"`

	Communities   int `json:"communities"`
	EventsCreated int `json:"events_created"`
	RSVPs         int `json:"rsvps"`
	PostsCreated  int `json:"posts_created"`
	OpenFlags     int `json:"open_flags"`
}

// PlatformStats aggregates across every community, only exposed to platform
// admins.
func PlatformStats(ctx context.Context, window Window) (*PlatformOverview, error) {
	cutoff := window.Cutoff()

	ov := &PlatformOverview{Window: window}

	err := common.PQ.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM communities`).Scan(&ov.Communities)
	if err != nil {
		return nil, errors.WithStackIf(err)
	}

	err = common.PQ.QueryRowContext(ctx,
		`SELECT
			(SELECT COUNT(*) FROM events WHERE created_at >= $1 AND deleted_at IS NULL),
			(SELECT COUNT(*) FROM event_rsvps WHERE created_at >= $1),
			(SELECT COUNT(*) FROM posts WHERE created_at >= $1 AND deleted_at IS NULL),
			(SELECT COUNT(*) FROM moderation_flags WHERE created_at >= $1 AND status = 'open')`, cutoff).
		Scan(&ov.EventsCreated, &ov.RSVPs, &ov.PostsCreated, &ov.OpenFlags)
	if err != nil {
		return nil, errors.WithStackIf(err)
	}

	return ov, nil
}
