package intents

var DBSchemas = []string{`
CREATE TABLE IF NOT EXISTS event_intents (
	id BIGINT PRIMARY KEY,

	community_id BIGINT NOT NULL,
	source_message_id BIGINT NOT NULL,

	intent_type TEXT NOT NULL,
	details JSONB NOT NULL,

	read BOOLEAN NOT NULL DEFAULT false,
	read_at TIMESTAMP WITH TIME ZONE,

	created_by BIGINT NOT NULL,
	created_at TIMESTAMP WITH TIME ZONE NOT NULL
);
`, `
CREATE INDEX IF NOT EXISTS event_intents_community_unread_idx ON event_intents(community_id) WHERE NOT read;
`}
