package rsvp

var DBSchemas = []string{`
CREATE TABLE IF NOT EXISTS event_rsvps (
	id BIGINT PRIMARY KEY,

	event_id BIGINT NOT NULL,
	user_id BIGINT NOT NULL,

	status TEXT NOT NULL,

	created_at TIMESTAMP WITH TIME ZONE NOT NULL,
	updated_at TIMESTAMP WITH TIME ZONE NOT NULL,

	UNIQUE(event_id, user_id)
);
`, `
CREATE INDEX IF NOT EXISTS event_rsvps_event_idx ON event_rsvps(event_id);
`}
