package posts

var DBSchemas = []string{`
CREATE TABLE IF NOT EXISTS posts (
	id BIGINT PRIMARY KEY,

	community_id BIGINT NOT NULL,
	author_id BIGINT NOT NULL,

	content TEXT NOT NULL,
	is_announcement BOOLEAN NOT NULL DEFAULT false,

	created_at TIMESTAMP WITH TIME ZONE NOT NULL,
	deleted_at TIMESTAMP WITH TIME ZONE
);
`, `
CREATE INDEX IF NOT EXISTS posts_community_idx ON posts(community_id, created_at);
`, `
CREATE TABLE IF NOT EXISTS messages (
	id BIGINT PRIMARY KEY,

	sender_id BIGINT NOT NULL,
	recipient_id BIGINT NOT NULL,

	content TEXT NOT NULL,
	read BOOLEAN NOT NULL DEFAULT false,

	created_at TIMESTAMP WITH TIME ZONE NOT NULL
);
`, `
CREATE INDEX IF NOT EXISTS messages_recipient_idx ON messages(recipient_id, created_at);
`}
