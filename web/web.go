package web

import (
	"context"
	"net/http"
	"time"

	"github.com/natefinch/lumberjack"
	"goji.io"
	"goji.io/pat"

	"github.com/commune-gg/commune/common"
	"github.com/commune-gg/commune/common/config"
)

var (
	// RootMux serves everything, including static uploads
	RootMux *goji.Mux

	// APIMux is mounted under /api and requires a valid session
	APIMux *goji.Mux

	// CommunityMux is mounted under /api/communities/:community and has the
	// community id and the current user's member role in the request context
	CommunityMux *goji.Mux

	server *http.Server

	logger = common.GetFixedPrefixLogger("web")
)

var (
	confListenAddr = config.RegisterOption("commune.web_listen_addr", "Address for the api server to listen on", ":5000")
	confAccessLog  = config.RegisterOption("commune.web_access_log", "Path of the api access log", "access.log")
)

// Plugin is implemented by plugins that provide api routes
type Plugin interface {
	common.Plugin

	// InitWeb is called during webserver startup, the plugin mounts its
	// routes on the package muxers here
	InitWeb()
}

func Run() {
	mux := setupRoutes()

	logger.Info("Starting commune api server on ", confListenAddr.GetString())

	server = &http.Server{
		Handler:      mux,
		Addr:         confListenAddr.GetString(),
		ReadTimeout:  time.Second * 15,
		WriteTimeout: time.Second * 30,
	}

	err := server.ListenAndServe()
	if err != nil && err != http.ErrServerClosed {
		logger.WithError(err).Error("Failed starting api server")
	}
}

func Stop() {
	if server == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second*5)
	defer cancel()
	server.Shutdown(ctx)
}

func setupRoutes() *goji.Mux {
	requestLogger := &lumberjack.Logger{
		Filename: confAccessLog.GetString(),
		MaxSize:  10,
	}

	RootMux = goji.NewMux()
	RootMux.Use(RequestLogger(requestLogger))
	RootMux.Use(RecoverMiddleware)

	RootMux.HandleFunc(pat.Get("/health"), handleHealth)

	APIMux = goji.SubMux()
	APIMux.Use(SessionMiddleware)
	RootMux.Handle(pat.New("/api/*"), APIMux)

	CommunityMux = goji.SubMux()
	CommunityMux.Use(RequireSessionMiddleware)
	CommunityMux.Use(CommunityMiddleware)
	APIMux.Handle(pat.New("/communities/:community/*"), CommunityMux)

	for _, p := range common.Plugins {
		if wp, ok := p.(Plugin); ok {
			logger.Info("Initializing web plugin: ", p.PluginInfo().Name)
			wp.InitWeb()
		}
	}

	return RootMux
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, map[string]string{"status": "ok", "version": common.VERSION})
}
