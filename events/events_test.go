package events

import (
	"context"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/volatiletech/null/v8"

	"github.com/commune-gg/commune/common"
	"github.com/commune-gg/commune/common/testutils"
)

func TestMain(m *testing.M) {
	conn, err := testutils.InitPQ([]string{"events", "community_members"}, append(DBSchemas, memberTableSchema))
	if err != nil {
		fmt.Println("Failed connecting to postgres database, not running tests: ", err)
		return
	}

	common.PQ = conn

	if err := common.InitTestRedis(); err != nil {
		fmt.Println("Failed connecting to redis, not running tests: ", err)
		return
	}

	os.Exit(m.Run())
}

// ListUpcoming joins against the membership table, which belongs to the
// communities plugin, so its schema is inlined here.
const memberTableSchema = `
CREATE TABLE IF NOT EXISTS community_members (
	community_id BIGINT NOT NULL,
	user_id BIGINT NOT NULL,
	role TEXT NOT NULL,
	joined_at TIMESTAMP WITH TIME ZONE NOT NULL,
	PRIMARY KEY(community_id, user_id)
);`

func futureForm() *Form {
	return &Form{
		Title:     "book club",
		StartTime: time.Now().Add(time.Hour * 48),
	}
}

func TestFormValidation(t *testing.T) {
	cases := []struct {
		name     string
		mutate   func(f *Form)
		expected error
	}{
		{"empty title", func(f *Form) { f.Title = "  " }, ErrTitleRequired},
		{"end before start", func(f *Form) { f.EndTime = null.TimeFrom(f.StartTime.Add(-time.Hour)) }, ErrEndBeforeStart},
		{"bad recurrence", func(f *Form) { f.RecurrenceRule = null.StringFrom("every second tuesday") }, ErrBadRecurrence},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			form := futureForm()
			c.mutate(form)
			err := form.validate()
			require.Equal(t, c.expected, err)
		})
	}

	form := futureForm()
	form.RecurrenceRule = null.StringFrom("FREQ=WEEKLY;COUNT=4")
	require.NoError(t, form.validate())
}

func TestCreateRejectsPastStart(t *testing.T) {
	form := futureForm()
	form.StartTime = time.Now().Add(-time.Hour)

	_, err := Create(context.Background(), 1, 1, form)
	require.Equal(t, ErrStartInPast, err)
}

func TestCreateAndGet(t *testing.T) {
	defer testutils.ClearTables(common.PQ, "events")

	ev, err := Create(context.Background(), 1, 2, futureForm())
	require.NoError(t, err)
	require.Equal(t, StatusUpcoming, ev.Status)

	fetched, err := Get(context.Background(), ev.ID)
	require.NoError(t, err)
	require.Equal(t, ev.Title, fetched.Title)
	require.EqualValues(t, 1, fetched.CommunityID)
	require.EqualValues(t, 2, fetched.CreatedBy)
	require.Empty(t, fetched.Tags)
}

func TestSoftDelete(t *testing.T) {
	defer testutils.ClearTables(common.PQ, "events")

	ev, err := Create(context.Background(), 1, 1, futureForm())
	require.NoError(t, err)

	require.NoError(t, SoftDelete(context.Background(), ev.ID))

	// still retrievable directly, gone from listings
	fetched, err := Get(context.Background(), ev.ID)
	require.NoError(t, err)
	require.True(t, fetched.DeletedAt.Valid)

	listed, err := ListByCommunity(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, listed, 0)

	require.Equal(t, ErrNotFound, SoftDelete(context.Background(), ev.ID))
}

func TestCancel(t *testing.T) {
	defer testutils.ClearTables(common.PQ, "events")

	ev, err := Create(context.Background(), 1, 1, futureForm())
	require.NoError(t, err)

	require.NoError(t, Cancel(context.Background(), ev.ID))

	fetched, err := Get(context.Background(), ev.ID)
	require.NoError(t, err)
	require.Equal(t, StatusCancelled, fetched.Status)
}

func TestNextOccurrence(t *testing.T) {
	start := time.Date(2026, 3, 2, 18, 0, 0, 0, time.UTC) // a monday

	ev := &Event{
		StartTime:      start,
		RecurrenceRule: null.StringFrom("FREQ=WEEKLY"),
	}

	next, ok := NextOccurrence(ev, start)
	require.True(t, ok)
	require.True(t, next.Equal(start.AddDate(0, 0, 7)), "got %s", next)

	// series with a count runs out
	ev.RecurrenceRule = null.StringFrom("FREQ=WEEKLY;COUNT=2")
	_, ok = NextOccurrence(ev, start.AddDate(0, 0, 21))
	require.False(t, ok)

	// non recurring events have no next occurrence
	ev.RecurrenceRule = null.String{}
	_, ok = NextOccurrence(ev, start)
	require.False(t, ok)
}

func TestAdvanceStatuses(t *testing.T) {
	defer testutils.ClearTables(common.PQ, "events")

	p := &Plugin{stopWorkers: make(chan *sync.WaitGroup)}

	// started an hour ago, no end time: should be ongoing
	insertWithTimes(t, "started", time.Now().Add(-time.Hour), null.Time{}, StatusUpcoming)
	// ended already: upcoming -> ongoing on the first pass, completed on the next
	insertWithTimes(t, "ended", time.Now().Add(-time.Hour*3), null.TimeFrom(time.Now().Add(-time.Hour*2)), StatusUpcoming)
	// far future: untouched
	future, err := Create(context.Background(), 1, 1, futureForm())
	require.NoError(t, err)

	require.NoError(t, p.advanceStatuses(context.Background()))
	require.NoError(t, p.advanceStatuses(context.Background()))

	byTitle := fetchStatusesByTitle(t)
	require.Equal(t, StatusOngoing, byTitle["started"])
	require.Equal(t, StatusCompleted, byTitle["ended"])

	fetched, err := Get(context.Background(), future.ID)
	require.NoError(t, err)
	require.Equal(t, StatusUpcoming, fetched.Status)
}

func TestRolloverRecurring(t *testing.T) {
	defer testutils.ClearTables(common.PQ, "events")

	p := &Plugin{stopWorkers: make(chan *sync.WaitGroup)}

	id := common.GenID()
	_, err := common.PQ.Exec(`INSERT INTO events (id, community_id, created_by, title, description,
		start_time, is_online, tags, recurrence_rule, status, created_at, updated_at)
		VALUES ($1, 1, 1, 'weekly sync', '', now() - interval '1 hour', false, '{}', 'FREQ=WEEKLY', 'completed', now(), now())`, id)
	require.NoError(t, err)

	require.NoError(t, p.rolloverRecurring(context.Background()))

	evs, err := ListByCommunity(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, evs, 2)

	old, err := Get(context.Background(), id)
	require.NoError(t, err)
	require.False(t, old.RecurrenceRule.Valid, "old occurrence should hand the rule to the new one")

	upcoming, err := queryEvents(context.Background(), `WHERE status = 'upcoming'`)
	require.NoError(t, err)
	require.Len(t, upcoming, 1)
	require.True(t, upcoming[0].StartTime.After(time.Now()))
	require.Equal(t, "FREQ=WEEKLY", upcoming[0].RecurrenceRule.String)
}

func insertWithTimes(t *testing.T, title string, start time.Time, end null.Time, status string) {
	_, err := common.PQ.Exec(`INSERT INTO events (id, community_id, created_by, title, description,
		start_time, end_time, is_online, tags, status, created_at, updated_at)
		VALUES ($1, 1, 1, $2, '', $3, $4, false, '{}', $5, now(), now())`,
		common.GenID(), title, start, end, status)
	require.NoError(t, err)
}

func fetchStatusesByTitle(t *testing.T) map[string]string {
	rows, err := common.PQ.Query(`SELECT title, status FROM events`)
	require.NoError(t, err)
	defer rows.Close()

	result := make(map[string]string)
	for rows.Next() {
		var title, status string
		require.NoError(t, rows.Scan(&title, &status))
		result[title] = status
	}
	return result
}
