package main

import (
	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"

	"github.com/commune-gg/commune/common/prom"
	"github.com/commune-gg/commune/common/run"

	// plugin imports, each registers its tables and routes
	"github.com/commune-gg/commune/communities"
	"github.com/commune-gg/commune/contentgen"
	"github.com/commune-gg/commune/events"
	"github.com/commune-gg/commune/intents"
	"github.com/commune-gg/commune/moderation"
	"github.com/commune-gg/commune/posts"
	"github.com/commune-gg/commune/rsvp"
	"github.com/commune-gg/commune/stats"
	"github.com/commune-gg/commune/storage"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.WithError(err).Info("No .env file loaded")
	}

	run.Init()

	prom.RegisterPlugin()
	communities.RegisterPlugin()
	events.RegisterPlugin()
	rsvp.RegisterPlugin()
	intents.RegisterPlugin()
	posts.RegisterPlugin()
	moderation.RegisterPlugin()
	contentgen.RegisterPlugin()
	stats.RegisterPlugin()
	storage.RegisterPlugin()

	run.Run()
}
