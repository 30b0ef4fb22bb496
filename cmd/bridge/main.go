// bridge: realtime evaluation-call bridge server
// Accepts telephony media-stream connections and relays them to the AI
// endpoint, producing scored evaluation reports.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/probelab/callprobe/internal/config"
	"github.com/probelab/callprobe/internal/log"
	"github.com/probelab/callprobe/pkg/bridge"
	"github.com/probelab/callprobe/pkg/realtime"
	"github.com/probelab/callprobe/pkg/scenario"
	"github.com/probelab/callprobe/pkg/score"
	"github.com/probelab/callprobe/pkg/store"
	"github.com/probelab/callprobe/pkg/telephony"
	"github.com/probelab/callprobe/pkg/web"
)

var version = "1.0.0"

func main() {
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Error("startup failed", "error", err)
		os.Exit(1)
	}
	log.Init(cfg.LogLevel)
	log.Info("callprobe bridge starting", "version", version, "port", cfg.Port)

	objects, err := buildObjectStore(cfg)
	if err != nil {
		log.Error("object store setup failed", "error", err)
		os.Exit(1)
	}

	tests, cleanup, err := buildTestStore(cfg)
	if err != nil {
		log.Error("test store setup failed", "error", err)
		os.Exit(1)
	}
	defer cleanup()

	var scorer score.Scorer = score.NewOpenAI(cfg.OpenAIKey)

	var controller telephony.Controller
	if cfg.TwilioAccountSID != "" {
		controller, err = telephony.NewTwilio(cfg.TwilioAccountSID, cfg.TwilioAuthToken)
		if err != nil {
			log.Error("twilio setup failed", "error", err)
			os.Exit(1)
		}
	} else {
		log.Warn("no twilio credentials, calls cannot be hung up remotely")
		controller = telephony.NewMockController()
	}

	srv := web.NewServer(web.Deps{
		Registry:   bridge.NewRegistry(),
		Tests:      tests,
		Objects:    objects,
		Scorer:     scorer,
		Controller: controller,
		NewEndpoint: func() (realtime.Endpoint, error) {
			return realtime.NewClient(cfg.OpenAIKey)
		},
		Options: bridge.Options{
			MinAudioBytes: cfg.MinAudioBytes,
			IdleTimeout:   cfg.AIIdleTimeout,
			GoodbyeWord:   cfg.GoodbyeWord,
			Voice:         cfg.Voice,
			VADThreshold:  cfg.VADThreshold,
			AudioFormat:   cfg.AudioFormat,
		},
	})

	go func() {
		if err := srv.Listen(":" + cfg.Port); err != nil {
			log.Error("server stopped", "error", err)
			os.Exit(1)
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	log.Info("shutting down")
	if err := srv.Shutdown(); err != nil {
		log.Warn("shutdown error", "error", err)
	}
}

func buildObjectStore(cfg *config.Config) (store.ObjectStore, error) {
	if cfg.S3Bucket == "" {
		log.Warn("no S3 bucket configured, recordings and reports stay in memory")
		return store.NewMemory(), nil
	}
	return store.NewS3(cfg.S3Bucket, cfg.AWSRegion)
}

func buildTestStore(cfg *config.Config) (scenario.Store, func(), error) {
	if cfg.PostgresURL == "" {
		log.Warn("no database configured, tests stay in memory")
		return scenario.NewMemory(), func() {}, nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	pg, err := scenario.NewPostgres(ctx, cfg.PostgresURL)
	if err != nil {
		return nil, nil, err
	}
	return pg, pg.Close, nil
}
