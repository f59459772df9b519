package main

import (
	"flag"
	"log"
	"net/http"
	"os"

	"github.com/christophhagen/RendezvousServer/internal/config"
	"github.com/christophhagen/RendezvousServer/internal/hardening"
	"github.com/christophhagen/RendezvousServer/internal/httpapi"
	"github.com/christophhagen/RendezvousServer/internal/push"
	"github.com/christophhagen/RendezvousServer/internal/registry"
	"github.com/christophhagen/RendezvousServer/internal/storage"
)

func main() {
	configPath := flag.String("config", "config.json", "path to the JSON config file")
	seedUser := flag.String("seed-user", "", "development only: allow this username to register on startup")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	dieIf(err)

	logger := log.New(os.Stderr, "", log.LstdFlags)
	if cfg.LogFile != "" {
		f, err := os.OpenFile(cfg.LogFile, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
		dieIf(err)
		defer f.Close()
		logger.SetOutput(f)
	}

	if err := hardening.DisableCoreDumps(); err != nil {
		logger.Printf("could not disable core dumps: %v", err)
	}

	store, err := storage.Open(cfg.DataFolder)
	dieIf(err)

	var notifier push.Notifier = push.Noop{}
	if cfg.NotificationServer != "" {
		notifier = push.NewHTTPNotifier(logger)
	}

	reg, err := registry.New(store, notifier, logger)
	dieIf(err)

	if *seedUser != "" {
		if !cfg.Development {
			logger.Fatal("-seed-user requires development: true in the config")
		}
		allowed, err := reg.AllowUser(*seedUser)
		dieIf(err)
		logger.Printf("seeded allowed user %q with pin %d", *seedUser, allowed.Pin)
	}

	srv := httpapi.New(reg, logger, cfg.Development)

	logger.Printf("listening on %s", cfg.ListenAddress)
	logger.Fatal(http.ListenAndServe(cfg.ListenAddress, srv.Handler()))
}

func dieIf(err error) {
	if err != nil {
		log.Fatal(err)
	}
}
