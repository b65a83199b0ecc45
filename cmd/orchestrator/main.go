package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/trainbox/orchestrator/internal/activity"
	"github.com/trainbox/orchestrator/internal/builder"
	"github.com/trainbox/orchestrator/internal/clock"
	"github.com/trainbox/orchestrator/internal/config"
	"github.com/trainbox/orchestrator/internal/docker"
	"github.com/trainbox/orchestrator/internal/events"
	"github.com/trainbox/orchestrator/internal/lifecycle"
	"github.com/trainbox/orchestrator/internal/logging"
	"github.com/trainbox/orchestrator/internal/notify"
	"github.com/trainbox/orchestrator/internal/proxy"
	"github.com/trainbox/orchestrator/internal/store"
	"github.com/trainbox/orchestrator/internal/web"
)

var version = "dev"

// shutdownGrace bounds how long in-flight requests may drain at shutdown.
const shutdownGrace = 15 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		os.Exit(1)
	}
	log := logging.New(cfg.LogJSON)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer cancel()

	var dockerTLS *docker.TLSConfig
	if cfg.DockerTLSCA != "" {
		dockerTLS = &docker.TLSConfig{
			CACert:     cfg.DockerTLSCA,
			ClientCert: cfg.DockerTLSCert,
			ClientKey:  cfg.DockerTLSKey,
		}
	}
	client, err := docker.NewClient(cfg.DockerSock, dockerTLS)
	if err != nil {
		log.Error("failed to create Docker client", "error", err)
		os.Exit(1)
	}
	defer client.Close()

	if err := client.Ping(ctx); err != nil {
		log.Error("Docker daemon unreachable", "sock", cfg.DockerSock, "error", err)
		os.Exit(1)
	}

	db, err := store.Open(cfg.DBPath)
	if err != nil {
		log.Error("failed to open database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	bus := events.New()
	tracker := activity.New()
	clk := clock.Real{}

	// Notification chain: log always, webhook and MQTT when configured.
	notifiers := []notify.Notifier{notify.NewLogNotifier(log)}
	if cfg.WebhookURL != "" {
		notifiers = append(notifiers, notify.NewWebhook(cfg.WebhookURL, parseHeaders(cfg.WebhookHeaders)))
		log.Info("webhook notifications enabled", "url", cfg.WebhookURL)
	}
	if cfg.MQTTBroker != "" {
		notifiers = append(notifiers, notify.NewMQTT(cfg.MQTTBroker, cfg.MQTTTopic, cfg.MQTTClientID, cfg.MQTTUsername, cfg.MQTTPassword, cfg.MQTTQoS))
		log.Info("mqtt notifications enabled", "broker", cfg.MQTTBroker, "topic", cfg.MQTTTopic)
	}
	notifier := notify.NewMulti(log, notifiers...)
	go notify.Bridge(ctx, bus, notifier)

	manager := lifecycle.New(client, db, tracker, bus, clk, log, cfg)
	defer manager.Close()
	bld := builder.New(client, db, bus, log, cfg.WorkDir)

	if err := manager.RecoverAtBoot(); err != nil {
		log.Error("boot recovery failed", "error", err)
		os.Exit(1)
	}
	go manager.RunReconciler(ctx)

	srv := web.NewServer(web.Dependencies{
		Launcher:      &launcherAdapter{manager},
		Builder:       &builderAdapter{bld},
		Catalog:       &catalogAdapter{db},
		Registry:      &registryAdapter{db},
		Journal:       &journalAdapter{db},
		Health:        &healthAdapter{client: client, store: db},
		EventBus:      bus,
		Log:           log,
		BaseDomain:    cfg.BaseDomain,
		UploadMaxSize: cfg.UploadMaxSize,
		UploadDir:     cfg.WorkDir,
	})

	// The subdomain proxy wraps the API mux as the outer handler on the
	// single listener.
	outer := proxy.New(db, tracker, clk, log, cfg.ProxyTimeout, srv.Handler())

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe(cfg.ListenAddr, outer)
	}()

	log.Info("orchestrator started", "version", version, "domain", cfg.BaseDomain)

	select {
	case <-ctx.Done():
		log.Info("shutting down, sandboxes stay running")
		shutdownCtx, stop := context.WithTimeout(context.Background(), shutdownGrace)
		defer stop()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Warn("shutdown drain incomplete", "error", err)
		}
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server error", "error", err)
			os.Exit(1)
		}
	}

	log.Info("orchestrator shutdown complete")
}

// parseHeaders parses comma-separated "Key:Value" pairs into a map.
func parseHeaders(s string) map[string]string {
	if s == "" {
		return nil
	}
	headers := make(map[string]string)
	for _, pair := range strings.Split(s, ",") {
		kv := strings.SplitN(strings.TrimSpace(pair), ":", 2)
		if len(kv) == 2 {
			headers[strings.TrimSpace(kv[0])] = strings.TrimSpace(kv[1])
		}
	}
	return headers
}
