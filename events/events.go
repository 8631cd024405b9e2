package events

import (
	"context"
	"database/sql"
	"strings"
	"sync"
	"time"

	"emperror.dev/errors"
	"github.com/lib/pq"
	"github.com/teambition/rrule-go"
	"github.com/volatiletech/null/v8"

	"github.com/commune-gg/commune/common"
	"github.com/commune-gg/commune/common/pubsub"
	"github.com/commune-gg/commune/stats"
)

var logger = common.GetPluginLogger(&Plugin{})

type Plugin struct {
	stopWorkers chan *sync.WaitGroup
}

func (p *Plugin) PluginInfo() *common.PluginInfo {
	return &common.PluginInfo{
		Name:     "Events",
		SysName:  "events",
		Category: common.PluginCategoryEvents,
	}
}

func RegisterPlugin() {
	common.RegisterDBSchemas("events", DBSchemas...)
	common.RegisterPlugin(&Plugin{
		stopWorkers: make(chan *sync.WaitGroup),
	})
}

// Event lifecycle statuses. Cancelled is terminal and only ever set
// explicitly, the rest are advanced by the status worker.
const (
	StatusUpcoming  = "upcoming"
	StatusOngoing   = "ongoing"
	StatusCompleted = "completed"
	StatusCancelled = "cancelled"
)

// PubsubEvtEventsChanged is published after every event mutation,
// subscribers re-fetch rather than applying the delta.
const PubsubEvtEventsChanged = "events_changed"

var (
	ErrNotFound       = errors.Sentinel("event not found")
	ErrBadRecurrence  = errors.Sentinel("invalid recurrence rule")
	ErrTitleRequired  = errors.Sentinel("title is required")
	ErrStartInPast    = errors.Sentinel("start time is in the past")
	ErrEndBeforeStart = errors.Sentinel("end time is before start time")
)

type Event struct {
	ID          int64  `json:"id"`
	CommunityID int64  `json:"community_id"`
	CreatedBy   int64  `json:"created_by"`
	Title       string `json:"title"`
	Description string `json:"description"`

	StartTime time.Time `json:"start_time"`
	EndTime   null.Time `json:"end_time,omitempty"`

	Location   null.String `json:"location,omitempty"`
	IsOnline   bool        `json:"is_online"`
	MeetingURL null.String `json:"meeting_url,omitempty"`

	// null capacity = unlimited
	Capacity       null.Int64  `json:"capacity,omitempty"`
	Tags           []string    `json:"tags"`
	RecurrenceRule null.String `json:"recurrence_rule,omitempty"`

	Status string `json:"status"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	DeletedAt null.Time `json:"deleted_at,omitempty"`
}

const eventColumns = `id, community_id, created_by, title, description, start_time, end_time,
	location, is_online, meeting_url, capacity, tags, recurrence_rule, status, created_at, updated_at, deleted_at`

func scanEvent(row interface{ Scan(...interface{}) error }) (*Event, error) {
	ev := &Event{}
	var tags pq.StringArray
	err := row.Scan(&ev.ID, &ev.CommunityID, &ev.CreatedBy, &ev.Title, &ev.Description,
		&ev.StartTime, &ev.EndTime, &ev.Location, &ev.IsOnline, &ev.MeetingURL,
		&ev.Capacity, &tags, &ev.RecurrenceRule, &ev.Status, &ev.CreatedAt, &ev.UpdatedAt, &ev.DeletedAt)
	if err != nil {
		return nil, err
	}

	ev.Tags = tags
	return ev, nil
}

// Form holds the caller supplied fields for creating or updating an event.
type Form struct {
	Title       string   `json:"title"`
	Description string   `json:"description"`
	StartTime   time.Time `json:"start_time"`
	EndTime     null.Time `json:"end_time"`

	Location   null.String `json:"location"`
	IsOnline   bool        `json:"is_online"`
	MeetingURL null.String `json:"meeting_url"`

	Capacity       null.Int64  `json:"capacity"`
	Tags           []string    `json:"tags"`
	RecurrenceRule null.String `json:"recurrence_rule"`
}

func (f *Form) validate() error {
	f.Title = strings.TrimSpace(f.Title)
	if f.Title == "" {
		return ErrTitleRequired
	}

	if f.EndTime.Valid && f.EndTime.Time.Before(f.StartTime) {
		return ErrEndBeforeStart
	}

	if f.RecurrenceRule.Valid && f.RecurrenceRule.String != "" {
		if _, err := rrule.StrToRRule(f.RecurrenceRule.String); err != nil {
			return ErrBadRecurrence
		}
	}

	if f.Tags == nil {
		f.Tags = []string{}
	}

	return nil
}

// Create inserts a new event in upcoming status. Membership/permission
// checks are the caller's responsibility (the web layer gates on
// CanManageEvents).
func Create(ctx context.Context, communityID, creatorID int64, form *Form) (*Event, error) {
	if err := form.validate(); err != nil {
		return nil, err
	}

	if form.StartTime.Before(time.Now()) {
		return nil, ErrStartInPast
	}

	now := time.Now()
	ev := &Event{
		ID:          common.GenID(),
		CommunityID: communityID,
		CreatedBy:   creatorID,
		Title:       form.Title,
		Description: form.Description,

		StartTime: form.StartTime,
		EndTime:   form.EndTime,

		Location:   form.Location,
		IsOnline:   form.IsOnline,
		MeetingURL: form.MeetingURL,

		Capacity:       form.Capacity,
		Tags:           form.Tags,
		RecurrenceRule: form.RecurrenceRule,

		Status:    StatusUpcoming,
		CreatedAt: now,
		UpdatedAt: now,
	}

	const q = `INSERT INTO events (` + eventColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, NULL)`

	_, err := common.PQ.ExecContext(ctx, q, ev.ID, ev.CommunityID, ev.CreatedBy, ev.Title, ev.Description,
		ev.StartTime, ev.EndTime, ev.Location, ev.IsOnline, ev.MeetingURL,
		ev.Capacity, pq.StringArray(ev.Tags), ev.RecurrenceRule, ev.Status, ev.CreatedAt, ev.UpdatedAt)
	if err != nil {
		return nil, errors.WithStackIf(err)
	}

	stats.RecordActivity(communityID, &Plugin{}, "events_created")
	pubsub.PublishLogErr(PubsubEvtEventsChanged, communityID, nil)
	return ev, nil
}

// Update overwrites the editable fields of the event. Unlike Create it
// accepts past start times, edit forms of ongoing events resubmit them.
func Update(ctx context.Context, eventID int64, form *Form) (*Event, error) {
	if err := form.validate(); err != nil {
		return nil, err
	}

	const q = `UPDATE events SET title=$2, description=$3, start_time=$4, end_time=$5, location=$6,
		is_online=$7, meeting_url=$8, capacity=$9, tags=$10, recurrence_rule=$11, updated_at=now()
		WHERE id=$1 AND deleted_at IS NULL
		RETURNING ` + eventColumns

	ev, err := scanEvent(common.PQ.QueryRowContext(ctx, q, eventID, form.Title, form.Description,
		form.StartTime, form.EndTime, form.Location, form.IsOnline, form.MeetingURL,
		form.Capacity, pq.StringArray(form.Tags), form.RecurrenceRule))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, errors.WithStackIf(err)
	}

	pubsub.PublishLogErr(PubsubEvtEventsChanged, ev.CommunityID, nil)
	return ev, nil
}

func Get(ctx context.Context, eventID int64) (*Event, error) {
	ev, err := scanEvent(common.PQ.QueryRowContext(ctx,
		`SELECT `+eventColumns+` FROM events WHERE id = $1`, eventID))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, errors.WithStackIf(err)
	}

	return ev, nil
}

// SoftDelete marks the event deleted, it stays retrievable through Get but
// disappears from the user facing listings.
func SoftDelete(ctx context.Context, eventID int64) error {
	res, err := common.PQ.ExecContext(ctx,
		`UPDATE events SET deleted_at = now() WHERE id = $1 AND deleted_at IS NULL`, eventID)
	if err != nil {
		return errors.WithStackIf(err)
	}

	affected, _ := res.RowsAffected()
	if affected == 0 {
		return ErrNotFound
	}

	return nil
}

// HardDelete physically removes the event row, only exposed on the admin
// management surface.
func HardDelete(ctx context.Context, eventID int64) error {
	res, err := common.PQ.ExecContext(ctx, `DELETE FROM events WHERE id = $1`, eventID)
	if err != nil {
		return errors.WithStackIf(err)
	}

	affected, _ := res.RowsAffected()
	if affected == 0 {
		return ErrNotFound
	}

	return nil
}

// Cancel marks the event cancelled, a terminal status.
func Cancel(ctx context.Context, eventID int64) error {
	res, err := common.PQ.ExecContext(ctx,
		`UPDATE events SET status = $2, updated_at = now() WHERE id = $1 AND deleted_at IS NULL`, eventID, StatusCancelled)
	if err != nil {
		return errors.WithStackIf(err)
	}

	affected, _ := res.RowsAffected()
	if affected == 0 {
		return ErrNotFound
	}

	return nil
}

func queryEvents(ctx context.Context, where string, args ...interface{}) ([]*Event, error) {
	rows, err := common.PQ.QueryContext(ctx, `SELECT `+eventColumns+` FROM events `+where, args...)
	if err != nil {
		return nil, errors.WithStackIf(err)
	}
	defer rows.Close()

	result := make([]*Event, 0)
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, errors.WithStackIf(err)
		}
		result = append(result, ev)
	}

	return result, rows.Err()
}

// ListByCommunity returns the community's non-deleted events, soonest first.
func ListByCommunity(ctx context.Context, communityID int64) ([]*Event, error) {
	return queryEvents(ctx, `WHERE community_id = $1 AND deleted_at IS NULL ORDER BY start_time ASC`, communityID)
}

// ListUpcoming returns upcoming events across the user's communities.
func ListUpcoming(ctx context.Context, userID int64, limit int) ([]*Event, error) {
	if limit <= 0 || limit > 100 {
		limit = 25
	}

	return queryEvents(ctx, `WHERE status = 'upcoming' AND deleted_at IS NULL
		AND community_id IN (SELECT community_id FROM community_members WHERE user_id = $1)
		ORDER BY start_time ASC LIMIT $2`, userID, limit)
}

// ListCreatedBy returns the user's own non-deleted events ("my events").
func ListCreatedBy(ctx context.Context, userID int64) ([]*Event, error) {
	return queryEvents(ctx, `WHERE created_by = $1 AND deleted_at IS NULL ORDER BY start_time DESC`, userID)
}

// NextOccurrence computes the next start after the given time according to
// the event's recurrence rule, using the event start as the series anchor.
// Returns false when the event doesn't recur or the series is exhausted.
func NextOccurrence(ev *Event, after time.Time) (time.Time, bool) {
	if !ev.RecurrenceRule.Valid || ev.RecurrenceRule.String == "" {
		return time.Time{}, false
	}

	rule, err := rrule.StrToRRule(ev.RecurrenceRule.String)
	if err != nil {
		logger.WithError(err).WithField("event", ev.ID).Error("stored recurrence rule does not parse")
		return time.Time{}, false
	}

	rule.DTStart(ev.StartTime)
	next := rule.After(after, false)
	if next.IsZero() {
		return time.Time{}, false
	}

	return next, true
}
