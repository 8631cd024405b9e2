package communities

import (
	"context"
	"database/sql"
	"time"

	"emperror.dev/errors"
	"github.com/karlseguin/ccache"
	"github.com/lib/pq"

	"github.com/commune-gg/commune/common"
	"github.com/commune-gg/commune/web"
)

var logger = common.GetPluginLogger(&Plugin{})

type Plugin struct{}

func (p *Plugin) PluginInfo() *common.PluginInfo {
	return &common.PluginInfo{
		Name:     "Communities",
		SysName:  "communities",
		Category: common.PluginCategoryCommunities,
	}
}

func RegisterPlugin() {
	common.RegisterDBSchemas("communities", DBSchemas...)
	common.RegisterPlugin(&Plugin{})

	web.MemberRoleResolver = GetMemberRole
}

var (
	ErrNotFound      = errors.Sentinel("community not found")
	ErrAlreadyMember = errors.Sentinel("already a member")
	ErrLastAdmin     = errors.Sentinel("cannot remove the last admin")
)

type Community struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	ImageURL    string    `json:"image_url"`
	CreatedBy   int64     `json:"created_by"`
	CreatedAt   time.Time `json:"created_at"`

	// filled by ListWithMemberCounts
	MemberCount int64 `json:"member_count,omitempty"`
}

type Member struct {
	CommunityID int64     `json:"community_id"`
	UserID      int64     `json:"user_id"`
	Role        string    `json:"role"`
	JoinedAt    time.Time `json:"joined_at"`
}

// member counts are cheap but hot (every discovery listing), cache briefly
var memberCountCache = ccache.New(ccache.Configure().MaxSize(5000))

const memberCountCacheTTL = time.Minute

// Create inserts a new community with the creator as its admin.
func Create(ctx context.Context, creatorID int64, name, description, imageURL string) (*Community, error) {
	c := &Community{
		ID:          common.GenID(),
		Name:        name,
		Description: description,
		ImageURL:    imageURL,
		CreatedBy:   creatorID,
		CreatedAt:   time.Now(),
	}

	tx, err := common.PQ.BeginTx(ctx, nil)
	if err != nil {
		return nil, errors.WithStackIf(err)
	}

	_, err = tx.ExecContext(ctx, `INSERT INTO communities (id, name, description, image_url, created_by, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`, c.ID, c.Name, c.Description, c.ImageURL, c.CreatedBy, c.CreatedAt)
	if err != nil {
		tx.Rollback()
		return nil, errors.WithStackIf(err)
	}

	_, err = tx.ExecContext(ctx, `INSERT INTO community_members (community_id, user_id, role, joined_at)
		VALUES ($1, $2, $3, $4)`, c.ID, creatorID, common.RoleAdmin, c.CreatedAt)
	if err != nil {
		tx.Rollback()
		return nil, errors.WithStackIf(err)
	}

	return c, errors.WithStackIf(tx.Commit())
}

func Get(ctx context.Context, id int64) (*Community, error) {
	c := &Community{}
	err := common.PQ.QueryRowContext(ctx, `SELECT id, name, description, image_url, created_by, created_at
		FROM communities WHERE id = $1`, id).
		Scan(&c.ID, &c.Name, &c.Description, &c.ImageURL, &c.CreatedBy, &c.CreatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, errors.WithStackIf(err)
	}

	return c, nil
}

// Search lists communities whose name contains the query, newest first.
// An empty query lists everything up to limit.
func Search(ctx context.Context, query string, limit int) ([]*Community, error) {
	if limit <= 0 || limit > 100 {
		limit = 25
	}

	rows, err := common.PQ.QueryContext(ctx, `SELECT id, name, description, image_url, created_by, created_at
		FROM communities WHERE name ILIKE '%' || $1 || '%' ORDER BY created_at DESC LIMIT $2`, query, limit)
	if err != nil {
		return nil, errors.WithStackIf(err)
	}
	defer rows.Close()

	result := make([]*Community, 0, limit)
	for rows.Next() {
		c := &Community{}
		err = rows.Scan(&c.ID, &c.Name, &c.Description, &c.ImageURL, &c.CreatedBy, &c.CreatedAt)
		if err != nil {
			return nil, errors.WithStackIf(err)
		}
		result = append(result, c)
	}

	return result, rows.Err()
}

// Join adds the user as a plain member.
func Join(ctx context.Context, communityID, userID int64) error {
	res, err := common.PQ.ExecContext(ctx, `INSERT INTO community_members (community_id, user_id, role, joined_at)
		VALUES ($1, $2, $3, now()) ON CONFLICT (community_id, user_id) DO NOTHING`, communityID, userID, common.RoleMember)
	if err != nil {
		return errors.WithStackIf(err)
	}

	affected, _ := res.RowsAffected()
	if affected == 0 {
		return ErrAlreadyMember
	}

	memberCountCache.Delete(common.StrID(communityID))
	return nil
}

// Leave removes the user's membership. The last admin of a community can't
// leave, the community would become unmanageable.
func Leave(ctx context.Context, communityID, userID int64) error {
	role, err := GetMemberRole(ctx, communityID, userID)
	if err != nil {
		return err
	}

	if role == common.RoleAdmin {
		var admins int
		err = common.PQ.QueryRowContext(ctx, `SELECT COUNT(*) FROM community_members
			WHERE community_id = $1 AND role = $2`, communityID, common.RoleAdmin).Scan(&admins)
		if err != nil {
			return errors.WithStackIf(err)
		}

		if admins <= 1 {
			return ErrLastAdmin
		}
	}

	_, err = common.PQ.ExecContext(ctx, `DELETE FROM community_members
		WHERE community_id = $1 AND user_id = $2`, communityID, userID)
	if err != nil {
		return errors.WithStackIf(err)
	}

	memberCountCache.Delete(common.StrID(communityID))
	return nil
}

// SetMemberRole updates a member's role, used by admins to promote
// co-admins.
func SetMemberRole(ctx context.Context, communityID, userID int64, role string) error {
	if role != common.RoleAdmin && role != common.RoleCoAdmin && role != common.RoleMember {
		return errors.New("invalid role")
	}

	res, err := common.PQ.ExecContext(ctx, `UPDATE community_members SET role = $3
		WHERE community_id = $1 AND user_id = $2`, communityID, userID, role)
	if err != nil {
		return errors.WithStackIf(err)
	}

	affected, _ := res.RowsAffected()
	if affected == 0 {
		return ErrNotFound
	}

	return nil
}

// GetMemberRole returns the user's role in the community, empty string for
// non-members.
func GetMemberRole(ctx context.Context, communityID, userID int64) (string, error) {
	var role string
	err := common.PQ.QueryRowContext(ctx, `SELECT role FROM community_members
		WHERE community_id = $1 AND user_id = $2`, communityID, userID).Scan(&role)
	if err != nil {
		if err == sql.ErrNoRows {
			return "", nil
		}
		return "", errors.WithStackIf(err)
	}

	return role, nil
}

// CanManageEvents reports whether the user may create/edit/delete events
// for the community.
func CanManageEvents(ctx context.Context, communityID, userID int64) (bool, error) {
	role, err := GetMemberRole(ctx, communityID, userID)
	if err != nil {
		return false, err
	}

	return common.IsRoleElevated(role), nil
}

// ListForUser returns the communities the user is a member of.
func ListForUser(ctx context.Context, userID int64) ([]*Community, error) {
	rows, err := common.PQ.QueryContext(ctx, `SELECT c.id, c.name, c.description, c.image_url, c.created_by, c.created_at
		FROM communities c
		JOIN community_members m ON m.community_id = c.id
		WHERE m.user_id = $1 ORDER BY m.joined_at ASC`, userID)
	if err != nil {
		return nil, errors.WithStackIf(err)
	}
	defer rows.Close()

	result := make([]*Community, 0)
	for rows.Next() {
		c := &Community{}
		err = rows.Scan(&c.ID, &c.Name, &c.Description, &c.ImageURL, &c.CreatedBy, &c.CreatedAt)
		if err != nil {
			return nil, errors.WithStackIf(err)
		}
		result = append(result, c)
	}

	return result, rows.Err()
}

// BatchMemberCounts returns member counts for the given communities in a
// single aggregate query, with a short per-community cache in front.
func BatchMemberCounts(ctx context.Context, communityIDs []int64) (map[int64]int64, error) {
	result := make(map[int64]int64, len(communityIDs))

	missing := make([]int64, 0, len(communityIDs))
	for _, id := range communityIDs {
		if item := memberCountCache.Get(common.StrID(id)); item != nil && !item.Expired() {
			result[id] = item.Value().(int64)
		} else {
			missing = append(missing, id)
		}
	}

	if len(missing) == 0 {
		return result, nil
	}

	rows, err := common.PQ.QueryContext(ctx, `SELECT community_id, COUNT(*) FROM community_members
		WHERE community_id = ANY($1) GROUP BY community_id`, pq.Int64Array(missing))
	if err != nil {
		return nil, errors.WithStackIf(err)
	}
	defer rows.Close()

	for rows.Next() {
		var id, count int64
		err = rows.Scan(&id, &count)
		if err != nil {
			return nil, errors.WithStackIf(err)
		}

		result[id] = count
		memberCountCache.Set(common.StrID(id), count, memberCountCacheTTL)
	}

	// communities with zero rows don't show up in the aggregate
	for _, id := range missing {
		if _, ok := result[id]; !ok {
			result[id] = 0
			memberCountCache.Set(common.StrID(id), int64(0), memberCountCacheTTL)
		}
	}

	return result, rows.Err()
}
