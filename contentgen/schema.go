package contentgen

var DBSchemas = []string{`
CREATE TABLE IF NOT EXISTS ai_operations (
	id BIGINT PRIMARY KEY,

	community_id BIGINT NOT NULL,

	operation TEXT NOT NULL,
	status TEXT NOT NULL,

	created_at TIMESTAMP WITH TIME ZONE NOT NULL
);
`, `
CREATE INDEX IF NOT EXISTS ai_operations_community_idx ON ai_operations(community_id, created_at);
`}
