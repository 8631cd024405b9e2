package communities

var DBSchemas = []string{`
CREATE TABLE IF NOT EXISTS communities (
	id BIGINT PRIMARY KEY,

	name TEXT NOT NULL,
	description TEXT NOT NULL,
	image_url TEXT NOT NULL,

	created_by BIGINT NOT NULL,
	created_at TIMESTAMP WITH TIME ZONE NOT NULL
);
`, `
CREATE TABLE IF NOT EXISTS community_members (
	community_id BIGINT NOT NULL REFERENCES communities(id) ON DELETE CASCADE,
	user_id BIGINT NOT NULL,

	role TEXT NOT NULL,
	joined_at TIMESTAMP WITH TIME ZONE NOT NULL,

	PRIMARY KEY(community_id, user_id)
);
`, `
CREATE INDEX IF NOT EXISTS community_members_user_idx ON community_members(user_id);
`}
