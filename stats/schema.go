package stats

var DBSchemas = []string{`
CREATE TABLE IF NOT EXISTS community_activity (
	community_id BIGINT NOT NULL,
	created_at TIMESTAMP WITH TIME ZONE NOT NULL,
	plugin TEXT NOT NULL,
	name TEXT NOT NULL,
	count INT NOT NULL
);
`, `
CREATE INDEX IF NOT EXISTS community_activity_idx ON community_activity(community_id, created_at);
`}
