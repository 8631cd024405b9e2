package rsvp

import (
	"context"
	"database/sql"
	"time"

	"emperror.dev/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/commune-gg/commune/common"
	"github.com/commune-gg/commune/common/keylock"
	"github.com/commune-gg/commune/common/pubsub"
	"github.com/commune-gg/commune/events"
	"github.com/commune-gg/commune/stats"
)

var logger = common.GetPluginLogger(&Plugin{})

type Plugin struct{}

func (p *Plugin) PluginInfo() *common.PluginInfo {
	return &common.PluginInfo{
		Name:     "RSVP",
		SysName:  "rsvp",
		Category: common.PluginCategoryEvents,
	}
}

func RegisterPlugin() {
	common.RegisterDBSchemas("rsvp", DBSchemas...)
	common.RegisterPlugin(&Plugin{})
}

const (
	StatusGoing    = "going"
	StatusMaybe    = "maybe"
	StatusNotGoing = "not_going"
)

// PubsubEvtRSVPsChanged is published after every accepted submission,
// subscribers re-fetch the counts rather than applying the delta.
const PubsubEvtRSVPsChanged = "rsvps_changed"

var (
	ErrEventPassed     = errors.Sentinel("event has passed")
	ErrCapacityReached = errors.Sentinel("capacity reached")
	ErrInvalidStatus   = errors.Sentinel("invalid rsvp status")
)

type RSVP struct {
	ID      int64 `json:"id"`
	EventID int64 `json:"event_id"`
	UserID  int64 `json:"user_id"`

	Status string `json:"status"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Counts is the per-status attendance breakdown of an event.
type Counts struct {
	Going    int64 `json:"going"`
	Maybe    int64 `json:"maybe"`
	NotGoing int64 `json:"not_going"`
}

type submitKey struct {
	eventID int64
	userID  int64
}

// submitLocks serializes repeated submissions from the same session per
// (event, user), the database unique constraint is the real guarantee, this
// just keeps double clicks from racing each other.
var submitLocks = keylock.NewKeyLock[submitKey]()

var metricsSubmitted = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "commune_rsvps_submitted_total",
	Help: "RSVP submissions accepted, by status",
}, []string{"status"})

func ValidStatus(status string) bool {
	switch status {
	case StatusGoing, StatusMaybe, StatusNotGoing:
		return true
	}

	return false
}

// Submit declares the user's attendance intent for the event.
//
// An event that already started is rejected before any write. When the
// event declares a capacity and the going count is already at it, a going
// submission is rejected too; that check runs against a count read just
// before the write, so it is advisory rather than a hard guarantee. The
// write itself is a single upsert keyed on (event, user), so at most one
// row ever exists per pair regardless of races.
//
// The returned count is re-read after the write and reflects it.
func Submit(ctx context.Context, eventID, userID int64, status string) (*RSVP, *Counts, error) {
	if !ValidStatus(status) {
		return nil, nil, ErrInvalidStatus
	}

	ev, err := events.Get(ctx, eventID)
	if err != nil {
		return nil, nil, err
	}

	if ev.StartTime.Before(time.Now()) {
		return nil, nil, ErrEventPassed
	}

	key := submitKey{eventID: eventID, userID: userID}
	handle := submitLocks.Lock(key, time.Second*5, time.Second*10)
	if handle == -1 {
		return nil, nil, errors.New("timed out waiting for an earlier submission")
	}
	defer submitLocks.Unlock(key, handle)

	if status == StatusGoing && ev.Capacity.Valid {
		count, err := AttendanceCount(ctx, eventID)
		if err != nil {
			return nil, nil, err
		}

		// if the user is already going they occupy one of the slots
		existing, err := Get(ctx, eventID, userID)
		if err != nil {
			return nil, nil, err
		}

		alreadyGoing := existing != nil && existing.Status == StatusGoing
		if !alreadyGoing && count >= ev.Capacity.Int64 {
			return nil, nil, ErrCapacityReached
		}
	}

	const q = `INSERT INTO event_rsvps (id, event_id, user_id, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, now(), now())
		ON CONFLICT (event_id, user_id)
		DO UPDATE SET status = EXCLUDED.status, updated_at = now()
		RETURNING id, event_id, user_id, status, created_at, updated_at`

	m := &RSVP{}
	err = common.PQ.QueryRowContext(ctx, q, common.GenID(), eventID, userID, status).
		Scan(&m.ID, &m.EventID, &m.UserID, &m.Status, &m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		return nil, nil, errors.WithStackIf(err)
	}

	counts, err := GetCounts(ctx, eventID)
	if err != nil {
		return nil, nil, err
	}

	metricsSubmitted.With(prometheus.Labels{"status": status}).Inc()
	stats.RecordActivity(ev.CommunityID, &Plugin{}, "rsvps_submitted")
	pubsub.PublishLogErr(PubsubEvtRSVPsChanged, ev.CommunityID, &ChangedEventData{EventID: eventID})

	return m, counts, nil
}

type ChangedEventData struct {
	EventID int64 `json:"event_id"`
}

// Get returns the user's RSVP for the event, nil when they haven't
// responded.
func Get(ctx context.Context, eventID, userID int64) (*RSVP, error) {
	m := &RSVP{}
	err := common.PQ.QueryRowContext(ctx, `SELECT id, event_id, user_id, status, created_at, updated_at
		FROM event_rsvps WHERE event_id = $1 AND user_id = $2`, eventID, userID).
		Scan(&m.ID, &m.EventID, &m.UserID, &m.Status, &m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, errors.WithStackIf(err)
	}

	return m, nil
}

// AttendanceCount returns the number of going responses for the event.
func AttendanceCount(ctx context.Context, eventID int64) (int64, error) {
	var count int64
	err := common.PQ.QueryRowContext(ctx, `SELECT COUNT(*) FROM event_rsvps
		WHERE event_id = $1 AND status = $2`, eventID, StatusGoing).Scan(&count)
	if err != nil {
		return 0, errors.WithStackIf(err)
	}

	return count, nil
}

// GetCounts returns the full per-status breakdown for the event.
func GetCounts(ctx context.Context, eventID int64) (*Counts, error) {
	rows, err := common.PQ.QueryContext(ctx, `SELECT status, COUNT(*) FROM event_rsvps
		WHERE event_id = $1 GROUP BY status`, eventID)
	if err != nil {
		return nil, errors.WithStackIf(err)
	}
	defer rows.Close()

	counts := &Counts{}
	for rows.Next() {
		var status string
		var count int64
		err = rows.Scan(&status, &count)
		if err != nil {
			return nil, errors.WithStackIf(err)
		}

		switch status {
		case StatusGoing:
			counts.Going = count
		case StatusMaybe:
			counts.Maybe = count
		case StatusNotGoing:
			counts.NotGoing = count
		}
	}

	return counts, rows.Err()
}

// ListForEvent returns all responses for the event, earliest responders
// first, used by the event management view.
func ListForEvent(ctx context.Context, eventID int64) ([]*RSVP, error) {
	rows, err := common.PQ.QueryContext(ctx, `SELECT id, event_id, user_id, status, created_at, updated_at
		FROM event_rsvps WHERE event_id = $1 ORDER BY created_at ASC`, eventID)
	if err != nil {
		return nil, errors.WithStackIf(err)
	}
	defer rows.Close()

	result := make([]*RSVP, 0)
	for rows.Next() {
		m := &RSVP{}
		err = rows.Scan(&m.ID, &m.EventID, &m.UserID, &m.Status, &m.CreatedAt, &m.UpdatedAt)
		if err != nil {
			return nil, errors.WithStackIf(err)
		}
		result = append(result, m)
	}

	return result, rows.Err()
}
