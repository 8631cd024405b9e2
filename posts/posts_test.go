package posts

import (
	"context"
	"fmt"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/commune-gg/commune/common"
	"github.com/commune-gg/commune/common/testutils"
)

func TestMain(m *testing.M) {
	conn, err := testutils.InitPQ([]string{"messages", "posts"}, DBSchemas)
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

func TestValidateContent(t *testing.T) {
	trimmed, err := validateContent("  hello there  ")
	require.NoError(t, err)
	require.Equal(t, "hello there", trimmed)

	_, err = validateContent("   ")
	require.Equal(t, ErrContentRequired, err)

	_, err = validateContent(strings.Repeat("a", MaxContentLength+1))
	require.Equal(t, ErrContentTooLong, err)

	// length is checked after trimming
	_, err = validateContent("  " + strings.Repeat("a", MaxContentLength) + "  ")
	require.NoError(t, err)
}

func TestCreateAndList(t *testing.T) {
	defer testutils.ClearTables(common.PQ, "posts")

	ctx := context.Background()
	const communityID = 1

	first, err := Create(ctx, communityID, 10, "regular post")
	require.NoError(t, err)
	require.False(t, first.IsAnnouncement)

	ann, err := CreateAnnouncement(ctx, communityID, 11, "big announcement")
	require.NoError(t, err)
	require.True(t, ann.IsAnnouncement)

	// another community, should never show up below
	_, err = Create(ctx, 2, 10, "elsewhere")
	require.NoError(t, err)

	all, err := ListByCommunity(ctx, communityID, 0)
	require.NoError(t, err)
	require.Len(t, all, 2)

	// newest first
	require.Equal(t, ann.ID, all[0].ID)
	require.Equal(t, first.ID, all[1].ID)

	anns, err := ListAnnouncements(ctx, communityID, 0)
	require.NoError(t, err)
	require.Len(t, anns, 1)
	require.Equal(t, ann.ID, anns[0].ID)
}

func TestSoftDelete(t *testing.T) {
	defer testutils.ClearTables(common.PQ, "posts")

	ctx := context.Background()

	p, err := Create(ctx, 1, 10, "short lived")
	require.NoError(t, err)

	require.NoError(t, SoftDelete(ctx, p.ID))

	_, err = Get(ctx, p.ID)
	require.Equal(t, ErrNotFound, err)

	listed, err := ListByCommunity(ctx, 1, 0)
	require.NoError(t, err)
	require.Empty(t, listed)

	// deleting twice, or deleting the unknown
	require.Equal(t, ErrNotFound, SoftDelete(ctx, p.ID))
	require.Equal(t, ErrNotFound, SoftDelete(ctx, -1))
}

func TestMessages(t *testing.T) {
	defer testutils.ClearTables(common.PQ, "messages")

	ctx := context.Background()
	const alice, bob = int64(10), int64(20)

	_, err := SendMessage(ctx, alice, alice, "note to self")
	require.Equal(t, ErrSelfMessage, err)

	m1, err := SendMessage(ctx, alice, bob, "hey bob")
	require.NoError(t, err)
	m2, err := SendMessage(ctx, alice, bob, "you there?")
	require.NoError(t, err)

	inbox, err := Inbox(ctx, bob, 0)
	require.NoError(t, err)
	require.Len(t, inbox, 2)
	require.Equal(t, m2.ID, inbox[0].ID)
	require.False(t, inbox[0].Read)

	// the sender's inbox stays empty
	sent, err := Inbox(ctx, alice, 0)
	require.NoError(t, err)
	require.Empty(t, sent)

	count, err := UnreadMessageCount(ctx, bob)
	require.NoError(t, err)
	require.Equal(t, 2, count)

	require.NoError(t, MarkMessageRead(ctx, m1.ID, bob))

	count, err = UnreadMessageCount(ctx, bob)
	require.NoError(t, err)
	require.Equal(t, 1, count)

	// only the recipient can mark a message read
	require.Equal(t, ErrMessageNotFound, MarkMessageRead(ctx, m2.ID, alice))
}
