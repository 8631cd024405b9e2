package posts

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"emperror.dev/errors"
	"github.com/volatiletech/null/v8"

	"github.com/commune-gg/commune/common"
	"github.com/commune-gg/commune/common/pubsub"
	"github.com/commune-gg/commune/stats"
)

var logger = common.GetPluginLogger(&Plugin{})

type Plugin struct{}

func (p *Plugin) PluginInfo() *common.PluginInfo {
	return &common.PluginInfo{
		Name:     "Posts",
		SysName:  "posts",
		Category: common.PluginCategoryCommunities,
	}
}

func RegisterPlugin() {
	common.RegisterDBSchemas("posts", DBSchemas...)
	common.RegisterPlugin(&Plugin{})
}

const PubsubEvtPostsChanged = "posts_changed"

var (
	ErrNotFound        = errors.Sentinel("post not found")
	ErrContentRequired = errors.Sentinel("content is required")
	ErrContentTooLong  = errors.Sentinel("content is too long")
)

// MaxContentLength caps post and message bodies.
const MaxContentLength = 10000

type Post struct {
	ID          int64 `json:"id"`
	CommunityID int64 `json:"community_id"`
	AuthorID    int64 `json:"author_id"`

	Content        string `json:"content"`
	IsAnnouncement bool   `json:"is_announcement"`

	CreatedAt time.Time `json:"created_at"`
	DeletedAt null.Time `json:"deleted_at,omitempty"`
}

const postColumns = `id, community_id, author_id, content, is_announcement, created_at, deleted_at`

func scanPost(row interface{ Scan(...interface{}) error }) (*Post, error) {
	p := &Post{}
	err := row.Scan(&p.ID, &p.CommunityID, &p.AuthorID, &p.Content, &p.IsAnnouncement, &p.CreatedAt, &p.DeletedAt)
	if err != nil {
		return nil, err
	}

	return p, nil
}

func validateContent(content string) (string, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return "", ErrContentRequired
	}
	if len(content) > MaxContentLength {
		return "", ErrContentTooLong
	}

	return content, nil
}

func create(ctx context.Context, communityID, authorID int64, content string, announcement bool) (*Post, error) {
	content, err := validateContent(content)
	if err != nil {
		return nil, err
	}

	p := &Post{
		ID:          common.GenID(),
		CommunityID: communityID,
		AuthorID:    authorID,

		Content:        content,
		IsAnnouncement: announcement,

		CreatedAt: time.Now(),
	}

	const q = `INSERT INTO posts (` + postColumns + `) VALUES ($1, $2, $3, $4, $5, $6, NULL)`
	_, err = common.PQ.ExecContext(ctx, q, p.ID, p.CommunityID, p.AuthorID, p.Content, p.IsAnnouncement, p.CreatedAt)
	if err != nil {
		return nil, errors.WithStackIf(err)
	}

	stats.RecordActivity(communityID, &Plugin{}, "posts_created")
	pubsub.PublishLogErr(PubsubEvtPostsChanged, communityID, nil)
	return p, nil
}

// Create inserts a regular community post.
func Create(ctx context.Context, communityID, authorID int64, content string) (*Post, error) {
	return create(ctx, communityID, authorID, content, false)
}

// CreateAnnouncement inserts an announcement post. The web layer gates this
// on admin role, internal callers (the intent converter) pass the acting
// admin directly.
func CreateAnnouncement(ctx context.Context, communityID, authorID int64, content string) (*Post, error) {
	return create(ctx, communityID, authorID, content, true)
}

func Get(ctx context.Context, postID int64) (*Post, error) {
	p, err := scanPost(common.PQ.QueryRowContext(ctx,
		`SELECT `+postColumns+` FROM posts WHERE id = $1`, postID))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, errors.WithStackIf(err)
	}

	return p, nil
}

func queryPosts(ctx context.Context, where string, args ...interface{}) ([]*Post, error) {
	rows, err := common.PQ.QueryContext(ctx, `SELECT `+postColumns+` FROM posts `+where, args...)
	if err != nil {
		return nil, errors.WithStackIf(err)
	}
	defer rows.Close()

	result := make([]*Post, 0)
	for rows.Next() {
		p, err := scanPost(rows)
		if err != nil {
			return nil, errors.WithStackIf(err)
		}
		result = append(result, p)
	}

	return result, rows.Err()
}

// ListByCommunity returns the community's non-deleted posts, newest first.
func ListByCommunity(ctx context.Context, communityID int64, limit int) ([]*Post, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}

	return queryPosts(ctx, `WHERE community_id = $1 AND deleted_at IS NULL ORDER BY created_at DESC LIMIT $2`, communityID, limit)
}

// ListAnnouncements returns only the announcement posts, newest first.
func ListAnnouncements(ctx context.Context, communityID int64, limit int) ([]*Post, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}

	return queryPosts(ctx, `WHERE community_id = $1 AND is_announcement AND deleted_at IS NULL ORDER BY created_at DESC LIMIT $2`, communityID, limit)
}

// SoftDelete hides the post from listings, the row stays behind for the
// moderation dashboards.
func SoftDelete(ctx context.Context, postID int64) error {
	var communityID int64
	err := common.PQ.QueryRowContext(ctx,
		`UPDATE posts SET deleted_at = now() WHERE id = $1 AND deleted_at IS NULL RETURNING community_id`, postID).Scan(&communityID)
	if err != nil {
		if err == sql.ErrNoRows {
			return ErrNotFound
		}
		return errors.WithStackIf(err)
	}

	pubsub.PublishLogErr(PubsubEvtPostsChanged, communityID, nil)
	return nil
}
