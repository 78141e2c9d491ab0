package main

import (
	"flag"
	"net/http"

	"github.com/sirupsen/logrus"

	"github.com/kurobon/retcon/internal/config"
	"github.com/kurobon/retcon/internal/git"
	"github.com/kurobon/retcon/internal/server"
	"github.com/kurobon/retcon/internal/session"
)

func main() {
	configPath := flag.String("config", "", "path to a YAML config file")
	flag.Parse()

	cfg := config.Global
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			logrus.WithError(err).Fatal("could not load config")
		}
		cfg = loaded
	}
	if lvl, err := logrus.ParseLevel(cfg.LogLevel); err == nil {
		logrus.SetLevel(lvl)
	}
	log := logrus.WithField("app", "retcon-server")

	open := func(path string) (session.Storage, error) {
		return git.Open(path, git.Options{Branch: cfg.Branch, Log: log})
	}
	srv := server.NewServer(open, session.Options{
		Limit:      cfg.Limit,
		SyncAuthor: cfg.SyncAuthorToCommitter,
		Log:        log,
	}, log)

	log.Infof("Server listening on %s", cfg.ListenAddr)
	if err := http.ListenAndServe(cfg.ListenAddr, srv); err != nil {
		log.WithError(err).Fatal("server stopped")
	}
}
