package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/hai-court/courtroom-gateway/internal/archive"
	"github.com/hai-court/courtroom-gateway/internal/config"
	"github.com/hai-court/courtroom-gateway/internal/httpapi"
	"github.com/hai-court/courtroom-gateway/internal/hub"
	"github.com/hai-court/courtroom-gateway/internal/upstream"
)

func main() {
	cfg := config.New()
	log := zap.S()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	h := hub.NewHub(ctx)
	client := upstream.NewClient(cfg.UpstreamBaseURL, cfg.UpstreamWSURL, log)

	api := &httpapi.API{
		Ctx:          ctx,
		Hub:          h,
		Upstream:     client,
		Meter:        upstream.CreditMeter{Client: client, Service: upstream.ServiceCourtroomSession},
		TurnMeter:    upstream.CreditMeter{Client: client, Service: upstream.ServiceCaseResponse},
		ReplyTimeout: cfg.ReplyTimeout,
		Log:          log,
	}

	if cfg.DatabaseURL != "" {
		store, err := archive.Open(cfg.DatabaseURL, log)
		if err != nil {
			log.Fatalw("open archive", "err", err)
		}
		api.Archiver = store
		api.Conversations = store
	}

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: httpapi.SetupRoutes(api),
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Infow("courtroom gateway listening", "port", cfg.Port, "upstream", cfg.UpstreamBaseURL)
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		h.Inbox() <- hub.ShutdownHub{}
		return srv.Shutdown(context.Background())
	})

	if err := g.Wait(); err != nil {
		log.Fatalw("server exited", "err", err)
	}
}
