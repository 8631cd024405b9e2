package rsvp

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
	"github.com/commune-gg/commune/events"
)

func TestMain(m *testing.M) {
	conn, err := testutils.InitPQ([]string{"event_rsvps", "events"}, append(events.DBSchemas, DBSchemas...))
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

func createTestEvent(t *testing.T, capacity int64) *events.Event {
	form := &events.Form{
		Title:     "test event",
		StartTime: time.Now().Add(time.Hour * 24),
	}
	if capacity > 0 {
		form.Capacity = null.Int64From(capacity)
	}

	ev, err := events.Create(context.Background(), 1, 1, form)
	require.NoError(t, err)
	return ev
}

// insertPassedEvent writes an event with a start in the past directly,
// Create refuses to make one.
func insertPassedEvent(t *testing.T) int64 {
	id := common.GenID()
	_, err := common.PQ.Exec(`INSERT INTO events (id, community_id, created_by, title, description,
		start_time, is_online, tags, status, created_at, updated_at)
		VALUES ($1, 1, 1, 'passed event', '', now() - interval '1 hour', false, '{}', 'completed', now(), now())`, id)
	require.NoError(t, err)
	return id
}

func TestSubmitInvalidStatus(t *testing.T) {
	_, _, err := Submit(context.Background(), 1, 1, "attending")
	require.Equal(t, ErrInvalidStatus, err)
}

func TestSubmitUpsert(t *testing.T) {
	defer testutils.ClearTables(common.PQ, "event_rsvps", "events")

	ev := createTestEvent(t, 0)

	m, counts, err := Submit(context.Background(), ev.ID, 10, StatusGoing)
	require.NoError(t, err)
	require.Equal(t, StatusGoing, m.Status)
	require.EqualValues(t, 1, counts.Going)

	// resubmitting changes the status in place instead of adding a row
	m2, counts, err := Submit(context.Background(), ev.ID, 10, StatusMaybe)
	require.NoError(t, err)
	require.Equal(t, m.ID, m2.ID)
	require.Equal(t, StatusMaybe, m2.Status)
	require.EqualValues(t, 0, counts.Going)
	require.EqualValues(t, 1, counts.Maybe)

	all, err := ListForEvent(context.Background(), ev.ID)
	require.NoError(t, err)
	require.Len(t, all, 1)
}

func TestSubmitConcurrent(t *testing.T) {
	defer testutils.ClearTables(common.PQ, "event_rsvps", "events")

	ev := createTestEvent(t, 0)

	statuses := []string{StatusGoing, StatusMaybe, StatusNotGoing}

	var wg sync.WaitGroup
	for i := 0; i < 15; i++ {
		wg.Add(1)
		go func(status string) {
			defer wg.Done()
			_, _, err := Submit(context.Background(), ev.ID, 10, status)
			require.NoError(t, err)
		}(statuses[i%len(statuses)])
	}
	wg.Wait()

	all, err := ListForEvent(context.Background(), ev.ID)
	require.NoError(t, err)
	require.Len(t, all, 1)

	counts, err := GetCounts(context.Background(), ev.ID)
	require.NoError(t, err)
	require.EqualValues(t, 1, counts.Going+counts.Maybe+counts.NotGoing)
}

func TestCapacityBoundary(t *testing.T) {
	defer testutils.ClearTables(common.PQ, "event_rsvps", "events")

	ev := createTestEvent(t, 2)

	_, _, err := Submit(context.Background(), ev.ID, 10, StatusGoing)
	require.NoError(t, err)

	_, counts, err := Submit(context.Background(), ev.ID, 11, StatusGoing)
	require.NoError(t, err)
	require.EqualValues(t, 2, counts.Going)

	// at capacity, a new going response is refused
	_, _, err = Submit(context.Background(), ev.ID, 12, StatusGoing)
	require.Equal(t, ErrCapacityReached, err)

	// maybe responses don't occupy slots
	_, _, err = Submit(context.Background(), ev.ID, 12, StatusMaybe)
	require.NoError(t, err)

	// someone already going can resubmit going, they hold one of the slots
	_, counts, err = Submit(context.Background(), ev.ID, 10, StatusGoing)
	require.NoError(t, err)
	require.EqualValues(t, 2, counts.Going)

	// a slot opens up when someone backs out
	_, _, err = Submit(context.Background(), ev.ID, 11, StatusNotGoing)
	require.NoError(t, err)

	_, counts, err = Submit(context.Background(), ev.ID, 12, StatusGoing)
	require.NoError(t, err)
	require.EqualValues(t, 2, counts.Going)
}

func TestSubmitPassedEvent(t *testing.T) {
	defer testutils.ClearTables(common.PQ, "event_rsvps", "events")

	eventID := insertPassedEvent(t)

	_, _, err := Submit(context.Background(), eventID, 10, StatusGoing)
	require.Equal(t, ErrEventPassed, err)

	// rejected before any write
	all, err := ListForEvent(context.Background(), eventID)
	require.NoError(t, err)
	require.Len(t, all, 0)
}

func TestSubmitMissingEvent(t *testing.T) {
	_, _, err := Submit(context.Background(), 999999, 10, StatusGoing)
	require.Equal(t, events.ErrNotFound, err)
}

func TestGetAbsent(t *testing.T) {
	defer testutils.ClearTables(common.PQ, "event_rsvps", "events")

	ev := createTestEvent(t, 0)

	m, err := Get(context.Background(), ev.ID, 42)
	require.NoError(t, err)
	require.Nil(t, m)
}
