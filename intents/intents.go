// Package intents consumes "event intent" records produced by the upstream
// message classification step: chat messages that likely describe an event
// to be scheduled. Community admins either convert an intent into a real
// event plus an announcement post, or dismiss it.
package intents

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"emperror.dev/errors"
	"github.com/cenkalti/backoff"
	jsoniter "github.com/json-iterator/go"
	"github.com/volatiletech/null/v8"

	"github.com/commune-gg/commune/common"
	"github.com/commune-gg/commune/events"
	"github.com/commune-gg/commune/posts"
)

var logger = common.GetPluginLogger(&Plugin{})

type Plugin struct{}

func (p *Plugin) PluginInfo() *common.PluginInfo {
	return &common.PluginInfo{
		Name:     "Event Intents",
		SysName:  "intents",
		Category: common.PluginCategoryEvents,
	}
}

func RegisterPlugin() {
	common.RegisterDBSchemas("intents", DBSchemas...)
	common.RegisterPlugin(&Plugin{})
}

const IntentTypeEvent = "event"

var (
	ErrNotFound      = errors.Sentinel("intent not found")
	ErrAlreadyRead   = errors.Sentinel("intent already handled")
	ErrUnknownIntent = errors.Sentinel("unknown intent type")
	ErrBadDetails    = errors.Sentinel("malformed intent details")
)

type Intent struct {
	ID              int64  `json:"id"`
	CommunityID     int64  `json:"community_id"`
	SourceMessageID int64  `json:"source_message_id"`
	IntentType      string `json:"intent_type"`

	Details EventDetails `json:"details"`

	Read   bool      `json:"read"`
	ReadAt null.Time `json:"read_at,omitempty"`

	CreatedBy int64     `json:"created_by"`
	CreatedAt time.Time `json:"created_at"`
}

// EventDetails is the structured payload of an event intent: the fields the
// classifier extracted from the message, with an optional AI enhanced block
// layered on top.
type EventDetails struct {
	Extracted ExtractedFields `json:"extracted"`
	AI        *AIFields       `json:"ai_generated_details,omitempty"`
}

type ExtractedFields struct {
	Title       string `json:"title"`
	Description string `json:"description"`

	// local date and time, "2006-01-02" and "15:04"
	Date string `json:"date"`
	Time string `json:"time"`

	Location          string   `json:"location"`
	SuggestedCapacity int64    `json:"suggested_capacity"`
	Tags              []string `json:"tags"`
	IsOnline          bool     `json:"is_online"`
	MeetingURL        string   `json:"meeting_url"`
}

type AIFields struct {
	Title                      string   `json:"title"`
	Description                string   `json:"description"`
	RecommendedCapacity        int64    `json:"recommended_capacity"`
	RecommendedDurationMinutes int64    `json:"recommended_duration_minutes"`
	Tags                       []string `json:"tags"`
}

// validate checks the payload at the boundary so the rest of the package
// can rely on the shape.
func (d *EventDetails) validate() error {
	if d.Extracted.Title == "" && (d.AI == nil || d.AI.Title == "") {
		return ErrBadDetails
	}

	if _, err := d.StartTime(); err != nil {
		return ErrBadDetails
	}

	return nil
}

// StartTime combines the extracted date and time strings into a single
// local timestamp.
func (d *EventDetails) StartTime() (time.Time, error) {
	return time.ParseInLocation("2006-01-02 15:04", d.Extracted.Date+" "+d.Extracted.Time, time.Local)
}

// Resolve applies the field precedence policy: the AI enhanced value wins
// where present, except capacity where the extracted suggestion wins.
func (d *EventDetails) Resolve() *events.Form {
	ex := d.Extracted

	form := &events.Form{
		Title:       ex.Title,
		Description: ex.Description,
		Location:    nullStringIf(ex.Location),
		IsOnline:    ex.IsOnline,
		MeetingURL:  nullStringIf(ex.MeetingURL),
		Tags:        ex.Tags,
	}

	if ex.SuggestedCapacity > 0 {
		form.Capacity = null.Int64From(ex.SuggestedCapacity)
	}

	start, err := d.StartTime()
	if err == nil {
		form.StartTime = start
	}

	if ai := d.AI; ai != nil {
		if ai.Title != "" {
			form.Title = ai.Title
		}
		if ai.Description != "" {
			form.Description = ai.Description
		}
		if !form.Capacity.Valid && ai.RecommendedCapacity > 0 {
			form.Capacity = null.Int64From(ai.RecommendedCapacity)
		}
		if len(form.Tags) == 0 {
			form.Tags = ai.Tags
		}
		if ai.RecommendedDurationMinutes > 0 {
			form.EndTime = null.TimeFrom(form.StartTime.Add(time.Duration(ai.RecommendedDurationMinutes) * time.Minute))
		}
	}

	return form
}

func nullStringIf(s string) null.String {
	if s == "" {
		return null.String{}
	}
	return null.StringFrom(s)
}

// Create records a new intent, called by the upstream classification
// pipeline.
func Create(ctx context.Context, communityID, sourceMessageID, createdBy int64, details *EventDetails) (*Intent, error) {
	if err := details.validate(); err != nil {
		return nil, err
	}

	encoded, err := jsoniter.Marshal(details)
	if err != nil {
		return nil, errors.WithStackIf(err)
	}

	n := &Intent{
		ID:              common.GenID(),
		CommunityID:     communityID,
		SourceMessageID: sourceMessageID,
		IntentType:      IntentTypeEvent,
		Details:         *details,
		CreatedBy:       createdBy,
		CreatedAt:       time.Now(),
	}

	_, err = common.PQ.ExecContext(ctx, `INSERT INTO event_intents
		(id, community_id, source_message_id, intent_type, details, read, created_by, created_at)
		VALUES ($1, $2, $3, $4, $5, false, $6, $7)`,
		n.ID, n.CommunityID, n.SourceMessageID, n.IntentType, encoded, n.CreatedBy, n.CreatedAt)
	if err != nil {
		return nil, errors.WithStackIf(err)
	}

	return n, nil
}

func Get(ctx context.Context, id int64) (*Intent, error) {
	n := &Intent{}
	var rawDetails []byte
	err := common.PQ.QueryRowContext(ctx, `SELECT id, community_id, source_message_id, intent_type, details, read, read_at, created_by, created_at
		FROM event_intents WHERE id = $1`, id).
		Scan(&n.ID, &n.CommunityID, &n.SourceMessageID, &n.IntentType, &rawDetails, &n.Read, &n.ReadAt, &n.CreatedBy, &n.CreatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, errors.WithStackIf(err)
	}

	err = jsoniter.Unmarshal(rawDetails, &n.Details)
	if err != nil {
		return nil, errors.WrapIf(err, "stored intent details do not parse")
	}

	return n, nil
}

// ListUnread returns the community's unhandled intents, oldest first.
func ListUnread(ctx context.Context, communityID int64) ([]*Intent, error) {
	rows, err := common.PQ.QueryContext(ctx, `SELECT id, community_id, source_message_id, intent_type, details, read, read_at, created_by, created_at
		FROM event_intents WHERE community_id = $1 AND NOT read ORDER BY created_at ASC`, communityID)
	if err != nil {
		return nil, errors.WithStackIf(err)
	}
	defer rows.Close()

	result := make([]*Intent, 0)
	for rows.Next() {
		n := &Intent{}
		var rawDetails []byte
		err = rows.Scan(&n.ID, &n.CommunityID, &n.SourceMessageID, &n.IntentType, &rawDetails, &n.Read, &n.ReadAt, &n.CreatedBy, &n.CreatedAt)
		if err != nil {
			return nil, errors.WithStackIf(err)
		}

		err = jsoniter.Unmarshal(rawDetails, &n.Details)
		if err != nil {
			logger.WithError(err).WithField("intent", n.ID).Error("stored intent details do not parse, skipping")
			continue
		}

		result = append(result, n)
	}

	return result, rows.Err()
}

// markRead flips the read flag, shared by conversion and dismissal.
func markRead(ctx context.Context, id int64) error {
	res, err := common.PQ.ExecContext(ctx, `UPDATE event_intents SET read = true, read_at = now()
		WHERE id = $1 AND NOT read`, id)
	if err != nil {
		return errors.WithStackIf(err)
	}

	affected, _ := res.RowsAffected()
	if affected == 0 {
		return ErrAlreadyRead
	}

	return nil
}

// Dismiss marks the intent handled without creating an event.
func Dismiss(ctx context.Context, intent *Intent) error {
	return markRead(ctx, intent.ID)
}

// CreateEventFromIntent converts the intent into a real event and posts an
// announcement to the community.
//
// The steps run in order: create the event, mark the intent read, insert
// the announcement. A failure creating the event aborts everything; a
// failure in a later step is logged but the already created event is not
// rolled back, leaving the event in place without its announcement.
func CreateEventFromIntent(ctx context.Context, intent *Intent, actingAdmin int64) (*events.Event, error) {
	if intent.IntentType != IntentTypeEvent {
		return nil, ErrUnknownIntent
	}

	form := intent.Details.Resolve()

	ev, err := events.Create(ctx, intent.CommunityID, actingAdmin, form)
	if err != nil {
		return nil, err
	}

	err = markRead(ctx, intent.ID)
	if err != nil && err != ErrAlreadyRead {
		logger.WithError(err).WithField("intent", intent.ID).Error("created event but failed marking intent read")
	}

	announcement := fmt.Sprintf("New event: %s on %s", ev.Title, ev.StartTime.Format("Mon, 02 Jan 2006 15:04"))
	err = backoff.Retry(func() error {
		_, perr := posts.CreateAnnouncement(ctx, intent.CommunityID, actingAdmin, announcement)
		return perr
	}, backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 3))
	if err != nil {
		logger.WithError(err).WithField("event", ev.ID).Error("created event but failed posting announcement")
	}

	common.AddAuditLogEntry(actingAdmin, intent.CommunityID, "created event ", ev.ID, " from intent ", intent.ID)
	return ev, nil
}
