package communities

import (
	"context"
	"fmt"
	"os"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/commune-gg/commune/common"
	"github.com/commune-gg/commune/common/testutils"
)

func TestMain(m *testing.M) {
	conn, err := testutils.InitPQ([]string{"community_members", "communities"}, DBSchemas)
	if err != nil {
		fmt.Println("Failed connecting to postgres database, not running tests: ", err)
		return
	}

	common.PQ = conn

	os.Exit(m.Run())
}

func TestCreateMakesCreatorAdmin(t *testing.T) {
	defer testutils.ClearTables(common.PQ, "community_members", "communities")

	c, err := Create(context.Background(), 1, "chess club", "casual games", "")
	require.NoError(t, err)

	role, err := GetMemberRole(context.Background(), c.ID, 1)
	require.NoError(t, err)
	require.Equal(t, common.RoleAdmin, role)

	ok, err := CanManageEvents(context.Background(), c.ID, 1)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestJoinLeave(t *testing.T) {
	defer testutils.ClearTables(common.PQ, "community_members", "communities")

	c, err := Create(context.Background(), 1, "chess club", "", "")
	require.NoError(t, err)

	require.NoError(t, Join(context.Background(), c.ID, 2))
	require.Equal(t, ErrAlreadyMember, Join(context.Background(), c.ID, 2))

	role, err := GetMemberRole(context.Background(), c.ID, 2)
	require.NoError(t, err)
	require.Equal(t, common.RoleMember, role)

	// plain members don't manage events
	ok, err := CanManageEvents(context.Background(), c.ID, 2)
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, Leave(context.Background(), c.ID, 2))

	role, err = GetMemberRole(context.Background(), c.ID, 2)
	require.NoError(t, err)
	require.Equal(t, "", role)
}

func TestLastAdminCannotLeave(t *testing.T) {
	defer testutils.ClearTables(common.PQ, "community_members", "communities")

	c, err := Create(context.Background(), 1, "chess club", "", "")
	require.NoError(t, err)

	require.Equal(t, ErrLastAdmin, Leave(context.Background(), c.ID, 1))

	// promoting a second admin unblocks the first
	require.NoError(t, Join(context.Background(), c.ID, 2))
	require.NoError(t, SetMemberRole(context.Background(), c.ID, 2, common.RoleAdmin))
	require.NoError(t, Leave(context.Background(), c.ID, 1))
}

func TestSetMemberRole(t *testing.T) {
	defer testutils.ClearTables(common.PQ, "community_members", "communities")

	c, err := Create(context.Background(), 1, "chess club", "", "")
	require.NoError(t, err)

	require.NoError(t, Join(context.Background(), c.ID, 2))
	require.NoError(t, SetMemberRole(context.Background(), c.ID, 2, common.RoleCoAdmin))

	ok, err := CanManageEvents(context.Background(), c.ID, 2)
	require.NoError(t, err)
	require.True(t, ok)

	require.Error(t, SetMemberRole(context.Background(), c.ID, 2, "owner"))
	require.Equal(t, ErrNotFound, SetMemberRole(context.Background(), c.ID, 99, common.RoleMember))
}

func TestSearch(t *testing.T) {
	defer testutils.ClearTables(common.PQ, "community_members", "communities")

	_, err := Create(context.Background(), 1, "Chess Club", "", "")
	require.NoError(t, err)
	_, err = Create(context.Background(), 1, "Hiking Group", "", "")
	require.NoError(t, err)

	found, err := Search(context.Background(), "chess", 10)
	require.NoError(t, err)
	require.Len(t, found, 1)
	require.Equal(t, "Chess Club", found[0].Name)

	all, err := Search(context.Background(), "", 10)
	require.NoError(t, err)
	require.Len(t, all, 2)
}

func TestBatchMemberCounts(t *testing.T) {
	defer testutils.ClearTables(common.PQ, "community_members", "communities")
	defer memberCountCache.Clear()

	a, err := Create(context.Background(), 1, "a", "", "")
	require.NoError(t, err)
	b, err := Create(context.Background(), 1, "b", "", "")
	require.NoError(t, err)

	require.NoError(t, Join(context.Background(), a.ID, 2))
	require.NoError(t, Join(context.Background(), a.ID, 3))

	counts, err := BatchMemberCounts(context.Background(), []int64{a.ID, b.ID, 12345})
	require.NoError(t, err)
	require.EqualValues(t, 3, counts[a.ID])
	require.EqualValues(t, 1, counts[b.ID])
	require.EqualValues(t, 0, counts[12345])
}
