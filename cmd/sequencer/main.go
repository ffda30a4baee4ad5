package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"lockstep.ai/internal/config"
	"lockstep.ai/internal/logging"
	"lockstep.ai/internal/sim/catalogs"
	"lockstep.ai/internal/transport/ws"
)

func main() {
	var (
		configPath = flag.String("config", "", "path to lockstep.yaml (optional)")
		addr       = flag.String("addr", "", "http listen address (overrides transport.listen)")
	)
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logging.New(logging.Config{}).WithError(err).Fatal("load config")
	}
	logger := logging.New(cfg.Log)
	if *addr != "" {
		cfg.Transport.Listen = *addr
	}

	cat, err := catalogs.Load(cfg.Catalog)
	if err != nil {
		logger.WithError(err).Fatal("load catalog")
	}

	relay := ws.NewRelay(ws.RelayConfig{CatalogDigest: cat.Digest(), Log: logger})

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(rw http.ResponseWriter, r *http.Request) {
		rw.WriteHeader(200)
		_, _ = fmt.Fprintf(rw, "ok peers=%d seq=%d\n", relay.Peers(), relay.Seq())
	})
	mux.HandleFunc("/v1/ws", relay.Handler())

	srv := &http.Server{
		Addr:              cfg.Transport.Listen,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	go func() {
		<-ctx.Done()
		ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel2()
		_ = srv.Shutdown(ctx2)
	}()

	logger.WithFields(logrus.Fields{
		"addr":           cfg.Transport.Listen,
		"session":        relay.SessionID(),
		"catalog_digest": cat.Digest(),
	}).Info("sequencer listening")
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.WithError(err).Fatal("ListenAndServe")
	}
	logger.WithField("last_seq", relay.Seq()).Info("sequencer stopped")
}
