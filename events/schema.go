package events

var DBSchemas = []string{`
CREATE TABLE IF NOT EXISTS events (
	id BIGINT PRIMARY KEY,

	community_id BIGINT NOT NULL,
	created_by BIGINT NOT NULL,

	title TEXT NOT NULL,
	description TEXT NOT NULL,

	start_time TIMESTAMP WITH TIME ZONE NOT NULL,
	end_time TIMESTAMP WITH TIME ZONE,

	location TEXT,
	is_online BOOLEAN NOT NULL,
	meeting_url TEXT,

	capacity INT,
	tags TEXT[] NOT NULL DEFAULT '{}',
	recurrence_rule TEXT,

	status TEXT NOT NULL,

	created_at TIMESTAMP WITH TIME ZONE NOT NULL,
	updated_at TIMESTAMP WITH TIME ZONE NOT NULL,
	deleted_at TIMESTAMP WITH TIME ZONE
);
`, `
CREATE INDEX IF NOT EXISTS events_community_idx ON events(community_id);
`, `
CREATE INDEX IF NOT EXISTS events_start_time_idx ON events(start_time);
`}
