package moderation

var DBSchemas = []string{`
CREATE TABLE IF NOT EXISTS moderation_flags (
	id BIGINT PRIMARY KEY,

	community_id BIGINT NOT NULL,

	target_kind TEXT NOT NULL,
	target_id BIGINT NOT NULL,

	reporter_id BIGINT NOT NULL,
	reason TEXT NOT NULL,

	status TEXT NOT NULL DEFAULT 'open',

	created_at TIMESTAMP WITH TIME ZONE NOT NULL,
	resolved_at TIMESTAMP WITH TIME ZONE,
	resolved_by BIGINT
);
`, `
CREATE INDEX IF NOT EXISTS moderation_flags_community_idx ON moderation_flags(community_id, status);
`}
