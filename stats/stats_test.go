package stats_test

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/commune-gg/commune/common"
	"github.com/commune-gg/commune/common/testutils"
	"github.com/commune-gg/commune/communities"
	"github.com/commune-gg/commune/contentgen"
	"github.com/commune-gg/commune/events"
	"github.com/commune-gg/commune/moderation"
	"github.com/commune-gg/commune/posts"
	"github.com/commune-gg/commune/rsvp"
	"github.com/commune-gg/commune/stats"
)

var dropTables = []string{
	"community_activity", "ai_operations", "moderation_flags",
	"messages", "posts", "event_rsvps", "events",
	"community_members", "communities",
}

func TestMain(m *testing.M) {
	schemas := append([]string{}, communities.DBSchemas...)
	schemas = append(schemas, events.DBSchemas...)
	schemas = append(schemas, rsvp.DBSchemas...)
	schemas = append(schemas, posts.DBSchemas...)
	schemas = append(schemas, moderation.DBSchemas...)
	schemas = append(schemas, contentgen.DBSchemas...)
	schemas = append(schemas, stats.DBSchemas...)

	conn, err := testutils.InitPQ(dropTables, schemas)
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

func TestParseWindow(t *testing.T) {
	cases := []struct {
		in   string
		want stats.Window
		err  error
	}{
		{"", stats.DefaultWindow, nil},
		{"24h", stats.WindowDay, nil},
		{"7d", stats.Window7Days, nil},
		{"30d", stats.Window30Days, nil},
		{"90d", stats.Window90Days, nil},
		{"1y", "", stats.ErrBadWindow},
		{"7D", "", stats.ErrBadWindow},
	}

	for _, c := range cases {
		w, err := stats.ParseWindow(c.in)
		require.Equal(t, c.err, err, "input %q", c.in)
		require.Equal(t, c.want, w, "input %q", c.in)
	}
}

func TestCutoff(t *testing.T) {
	cutoff := stats.Window7Days.Cutoff()
	expected := time.Now().Add(-time.Hour * 24 * 7)
	require.WithinDuration(t, expected, cutoff, time.Second)

	// unknown windows fall back to the default instead of an empty range
	require.WithinDuration(t, expected, stats.Window("nope").Cutoff(), time.Second)
}

func TestTallyTopics(t *testing.T) {
	topics := stats.TallyTopics([]string{
		"gaming night and more gaming",
		"board gaming meetup",
		"music in the park",
	})

	require.Len(t, topics, 3)
	require.Equal(t, "gaming", topics[0].Keyword)
	require.Equal(t, 3, topics[0].Count)

	// meetup and music tie at one hit each, vocabulary order breaks the tie
	require.Equal(t, "meetup", topics[1].Keyword)
	require.Equal(t, "music", topics[2].Keyword)

	require.Empty(t, stats.TallyTopics(nil))
	require.Empty(t, stats.TallyTopics([]string{"nothing matching here"}))
}

func createCommunity(t *testing.T, name string) *communities.Community {
	c, err := communities.Create(context.Background(), 1, name, "", "")
	require.NoError(t, err)
	return c
}

func createEvent(t *testing.T, communityID int64) *events.Event {
	ev, err := events.Create(context.Background(), communityID, 1, &events.Form{
		Title:     "stats fixture event",
		StartTime: time.Now().Add(time.Hour * 24),
	})
	require.NoError(t, err)
	return ev
}

func TestCommunityOverview(t *testing.T) {
	defer testutils.ClearTables(common.PQ, "moderation_flags", "posts",
		"event_rsvps", "events", "community_members", "communities")

	ctx := context.Background()
	c := createCommunity(t, "overview community")
	other := createCommunity(t, "other community")

	ev := createEvent(t, c.ID)
	createEvent(t, other.ID)

	_, _, err := rsvp.Submit(ctx, ev.ID, 10, rsvp.StatusGoing)
	require.NoError(t, err)
	_, _, err = rsvp.Submit(ctx, ev.ID, 11, rsvp.StatusGoing)
	require.NoError(t, err)
	_, _, err = rsvp.Submit(ctx, ev.ID, 12, rsvp.StatusMaybe)
	require.NoError(t, err)

	p, err := posts.Create(ctx, c.ID, 10, "first post")
	require.NoError(t, err)
	_, err = posts.Create(ctx, c.ID, 11, "second post")
	require.NoError(t, err)

	deleted, err := posts.Create(ctx, c.ID, 10, "soon gone")
	require.NoError(t, err)
	require.NoError(t, posts.SoftDelete(ctx, deleted.ID))

	open, err := moderation.FlagContent(ctx, c.ID, 11, moderation.TargetPost, p.ID, "spam")
	require.NoError(t, err)
	resolved, err := moderation.FlagContent(ctx, c.ID, 12, moderation.TargetPost, p.ID, "also spam")
	require.NoError(t, err)
	_, err = moderation.Resolve(ctx, resolved.ID, 1)
	require.NoError(t, err)

	ov, err := stats.CommunityOverview(ctx, c.ID, stats.Window7Days)
	require.NoError(t, err)

	require.Equal(t, 1, ov.EventsCreated)
	require.Equal(t, map[string]int{rsvp.StatusGoing: 2, rsvp.StatusMaybe: 1}, ov.RSVPsByStatus)
	require.Equal(t, 2, ov.PostsCreated)
	require.Equal(t, 1, ov.OpenFlags)
	require.Equal(t, 2, ov.TotalFlags)
	require.Equal(t, open.CommunityID, ov.CommunityID)

	// nothing changed, the numbers must not drift
	again, err := stats.CommunityOverview(ctx, c.ID, stats.Window7Days)
	require.NoError(t, err)
	require.Equal(t, ov, again)

	// the other community saw an event but none of the rest
	ov, err = stats.CommunityOverview(ctx, other.ID, stats.Window7Days)
	require.NoError(t, err)
	require.Equal(t, 1, ov.EventsCreated)
	require.Empty(t, ov.RSVPsByStatus)
	require.Equal(t, 0, ov.PostsCreated)
	require.Equal(t, 0, ov.TotalFlags)
}

// insertAgedOperation writes an ai_operations row directly so it can carry a
// created_at outside the window under test.
func insertAgedOperation(t *testing.T, communityID int64, operation, status string, age time.Duration) {
	_, err := common.PQ.Exec(`INSERT INTO ai_operations (id, community_id, operation, status, created_at)
		VALUES ($1, $2, $3, $4, now() - $5::interval)`,
		common.GenID(), communityID, operation, status, fmt.Sprintf("%d seconds", int(age.Seconds())))
	require.NoError(t, err)
}

func TestAIOpsReport(t *testing.T) {
	defer testutils.ClearTables(common.PQ, "ai_operations")

	ctx := context.Background()
	const communityID = 100

	contentgen.LogOperation(ctx, communityID, contentgen.OpGenerateDescription, contentgen.OpStatusOK)
	contentgen.LogOperation(ctx, communityID, contentgen.OpGenerateDescription, contentgen.OpStatusOK)
	contentgen.LogOperation(ctx, communityID, contentgen.OpGenerateDescription, contentgen.OpStatusError)
	contentgen.LogOperation(ctx, communityID, contentgen.OpSuggestTags, contentgen.OpStatusOK)

	// outside the 7d window, must not show up
	insertAgedOperation(t, communityID, contentgen.OpSuggestTags, contentgen.OpStatusError, time.Hour*24*10)

	report, err := stats.AIOpsReport(ctx, communityID, stats.Window7Days)
	require.NoError(t, err)
	require.Len(t, report, 2)

	require.Equal(t, contentgen.OpGenerateDescription, report[0].Operation)
	require.Equal(t, 3, report[0].Total)
	require.Equal(t, 2, report[0].Successes)
	require.InDelta(t, 2.0/3.0, report[0].SuccessRate, 0.001)

	require.Equal(t, contentgen.OpSuggestTags, report[1].Operation)
	require.Equal(t, 1, report[1].Total)
	require.Equal(t, 1.0, report[1].SuccessRate)

	// the widest window picks the aged row back up
	report, err = stats.AIOpsReport(ctx, communityID, stats.Window30Days)
	require.NoError(t, err)
	require.Equal(t, 2, report[1].Total)
	require.Equal(t, 1, report[1].Successes)

	report, err = stats.AIOpsReport(ctx, 999, stats.Window7Days)
	require.NoError(t, err)
	require.Empty(t, report)
}

func TestTrendingTopics(t *testing.T) {
	defer testutils.ClearTables(common.PQ, "posts")

	ctx := context.Background()
	const communityID = 200

	_, err := posts.Create(ctx, communityID, 1, "Gaming night this friday, bring snacks")
	require.NoError(t, err)
	_, err = posts.Create(ctx, communityID, 2, "Anyone up for the gaming meetup?")
	require.NoError(t, err)
	_, err = posts.Create(ctx, communityID, 3, "Looking for volunteer help at the food bank")
	require.NoError(t, err)

	// other communities don't bleed into the ranking
	_, err = posts.Create(ctx, 201, 1, "gaming gaming gaming")
	require.NoError(t, err)

	topics, err := stats.TrendingTopics(ctx, communityID, stats.Window7Days)
	require.NoError(t, err)
	require.NotEmpty(t, topics)
	require.Equal(t, "gaming", topics[0].Keyword)
	require.Equal(t, 2, topics[0].Count)

	found := make(map[string]int)
	for _, topic := range topics {
		found[topic.Keyword] = topic.Count
	}
	require.Equal(t, 1, found["meetup"])
	require.Equal(t, 1, found["food"])
	require.Equal(t, 1, found["volunteer"])
	require.NotContains(t, found, "music")
}

func TestPlatformStats(t *testing.T) {
	defer testutils.ClearTables(common.PQ, "moderation_flags", "posts",
		"event_rsvps", "events", "community_members", "communities")

	ctx := context.Background()
	c1 := createCommunity(t, "platform one")
	c2 := createCommunity(t, "platform two")

	ev := createEvent(t, c1.ID)
	createEvent(t, c2.ID)

	_, _, err := rsvp.Submit(ctx, ev.ID, 10, rsvp.StatusGoing)
	require.NoError(t, err)

	p, err := posts.Create(ctx, c2.ID, 1, "hello platform")
	require.NoError(t, err)
	_, err = moderation.FlagContent(ctx, c2.ID, 2, moderation.TargetPost, p.ID, "reported")
	require.NoError(t, err)

	ov, err := stats.PlatformStats(ctx, stats.Window7Days)
	require.NoError(t, err)
	require.Equal(t, 2, ov.Communities)
	require.Equal(t, 2, ov.EventsCreated)
	require.Equal(t, 1, ov.RSVPs)
	require.Equal(t, 1, ov.PostsCreated)
	require.Equal(t, 1, ov.OpenFlags)
}
