package posts

import (
	"context"
	"time"

	"emperror.dev/errors"

	"github.com/commune-gg/commune/common"
)

// Direct messages between users, also used for admin broadcasts sent to
// individual members. Unlike posts these are user scoped, not community
// scoped.

var (
	ErrMessageNotFound = errors.Sentinel("message not found")
	ErrSelfMessage     = errors.Sentinel("cannot message yourself")
)

type Message struct {
	ID          int64 `json:"id"`
	SenderID    int64 `json:"sender_id"`
	RecipientID int64 `json:"recipient_id"`

	Content string `json:"content"`
	Read    bool   `json:"read"`

	CreatedAt time.Time `json:"created_at"`
}

const messageColumns = `id, sender_id, recipient_id, content, read, created_at`

func scanMessage(row interface{ Scan(...interface{}) error }) (*Message, error) {
	m := &Message{}
	err := row.Scan(&m.ID, &m.SenderID, &m.RecipientID, &m.Content, &m.Read, &m.CreatedAt)
	if err != nil {
		return nil, err
	}

	return m, nil
}

func SendMessage(ctx context.Context, senderID, recipientID int64, content string) (*Message, error) {
	if senderID == recipientID {
		return nil, ErrSelfMessage
	}

	content, err := validateContent(content)
	if err != nil {
		return nil, err
	}

	m := &Message{
		ID:          common.GenID(),
		SenderID:    senderID,
		RecipientID: recipientID,

		Content:   content,
		CreatedAt: time.Now(),
	}

	const q = `INSERT INTO messages (` + messageColumns + `) VALUES ($1, $2, $3, $4, false, $5)`
	_, err = common.PQ.ExecContext(ctx, q, m.ID, m.SenderID, m.RecipientID, m.Content, m.CreatedAt)
	if err != nil {
		return nil, errors.WithStackIf(err)
	}

	return m, nil
}

// Inbox returns messages sent to the user, newest first.
func Inbox(ctx context.Context, userID int64, limit int) ([]*Message, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}

	rows, err := common.PQ.QueryContext(ctx,
		`SELECT `+messageColumns+` FROM messages WHERE recipient_id = $1 ORDER BY created_at DESC LIMIT $2`, userID, limit)
	if err != nil {
		return nil, errors.WithStackIf(err)
	}
	defer rows.Close()

	result := make([]*Message, 0)
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, errors.WithStackIf(err)
		}
		result = append(result, m)
	}

	return result, rows.Err()
}

func UnreadMessageCount(ctx context.Context, userID int64) (int, error) {
	var count int
	err := common.PQ.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM messages WHERE recipient_id = $1 AND NOT read`, userID).Scan(&count)
	if err != nil {
		return 0, errors.WithStackIf(err)
	}

	return count, nil
}

// MarkMessageRead flips the read flag, only the recipient can do so.
func MarkMessageRead(ctx context.Context, messageID, userID int64) error {
	res, err := common.PQ.ExecContext(ctx,
		`UPDATE messages SET read = true WHERE id = $1 AND recipient_id = $2`, messageID, userID)
	if err != nil {
		return errors.WithStackIf(err)
	}

	affected, _ := res.RowsAffected()
	if affected == 0 {
		return ErrMessageNotFound
	}

	return nil
}
