package main

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/robfig/cron/v3"

	"github.com/antialize/simple-admin-sub001/internal/auth"
	"github.com/antialize/simple-admin-sub001/internal/clock"
	"github.com/antialize/simple-admin-sub001/internal/config"
	"github.com/antialize/simple-admin-sub001/internal/deploy"
	"github.com/antialize/simple-admin-sub001/internal/events"
	"github.com/antialize/simple-admin-sub001/internal/hostsession"
	"github.com/antialize/simple-admin-sub001/internal/httpapi"
	"github.com/antialize/simple-admin-sub001/internal/logging"
	"github.com/antialize/simple-admin-sub001/internal/metrics"
	"github.com/antialize/simple-admin-sub001/internal/notify"
	"github.com/antialize/simple-admin-sub001/internal/operator"
	"github.com/antialize/simple-admin-sub001/internal/store"
)

// version and commit are set at build time via ldflags:
//
//	-X main.version=$(VERSION) -X main.commit=$(COMMIT)
//
// version defaults to "dev" for untagged local builds.
// commit defaults to "unknown" when git info isn't available.
var version = "dev"
var commit = "unknown"

func versionString() string {
	if commit != "" && commit != "unknown" {
		return version + " (" + commit + ")"
	}
	return version
}

// Housekeeping sweep cutoffs (internal/store/housekeeping.go), run once a
// day. These aren't named by any source this was distilled from — they're
// a narrowly scoped extension bounding otherwise-unbounded table growth.
const (
	sessionMaxAge          = 30 * 24 * time.Hour
	objectVersionMaxAge    = 90 * 24 * time.Hour
	dismissedMessageMaxAge = 48 * time.Hour
)

const shutdownTimeout = 5 * time.Second

func main() {
	configPath := "/data/config.json"
	if len(os.Args) > 1 {
		configPath = os.Args[1]
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		os.Exit(1)
	}

	log := logging.New(cfg.LogJSON)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer cancel()

	fmt.Println("simple-admin-server " + versionString())
	fmt.Println("=============================================")
	fmt.Printf("hostname=%s\n", cfg.Hostname)
	fmt.Printf("dbPath=%s\n", cfg.DBPath)
	fmt.Printf("listenAddr=%s\n", cfg.ListenAddr)
	fmt.Printf("operatorAddr=%s\n", cfg.OperatorAddr)
	fmt.Printf("tls=%t\n", cfg.TLSEnabled())
	fmt.Println("=============================================")

	bus := events.New()

	st, err := store.Open(cfg.DBPath, bus)
	if err != nil {
		log.Error("failed to open store", "err", err)
		os.Exit(1)
	}
	defer st.Close()

	authSvc := auth.NewService(st, cfg.Users, clock.Real{}, log.Logger)

	hostSrv := hostsession.NewServer(st, bus, log.Logger)
	orchestrator := deploy.NewOrchestrator(hostSrv.Registry, st, bus, log.Logger)

	hub := operator.NewHub(bus, log.Logger)
	opHandler := &operator.Handler{
		Hub:      hub,
		Auth:     authSvc,
		Store:    st,
		Deployer: orchestrator,
		Hosts:    hostSrv.Registry,
		Log:      log.Logger,
	}

	dispatcher := notify.NewMulti(log.Logger, buildNotifiers(cfg, log)...)
	notify.Subscribe(ctx, bus, dispatcher)

	mux := http.NewServeMux()
	mux.Handle("/ws", opHandler)
	mux.Handle("/setup", &httpapi.Setup{Store: st, Bus: bus, Hostname: cfg.Hostname, Log: log.Logger})
	mux.Handle("/terminal", &httpapi.Terminal{Auth: authSvc, Hosts: hostSrv.Registry, Log: log.Logger})
	mux.Handle("/metrics", promhttp.Handler())

	operatorSrv := &http.Server{Addr: cfg.OperatorAddr, Handler: mux}
	go func() {
		var err error
		if cfg.TLSEnabled() {
			err = operatorSrv.ListenAndServeTLS(cfg.TLSCert, cfg.TLSKey)
		} else {
			err = operatorSrv.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("operator server error", "err", err)
		}
	}()

	agentLn, err := net.Listen("tcp", cfg.ListenAddr)
	if err != nil {
		log.Error("failed to listen for agents", "addr", cfg.ListenAddr, "err", err)
		os.Exit(1)
	}
	if cfg.TLSEnabled() {
		cert, certErr := tls.LoadX509KeyPair(cfg.TLSCert, cfg.TLSKey)
		if certErr != nil {
			log.Error("failed to load agent TLS certificate", "err", certErr)
			os.Exit(1)
		}
		agentLn = tls.NewListener(agentLn, &tls.Config{Certificates: []tls.Certificate{cert}})
	}

	go func() {
		if err := hostSrv.Serve(agentLn); err != nil {
			log.Warn("agent listener stopped", "err", err)
		}
	}()

	housekeeping := cron.New()
	if _, err := housekeeping.AddFunc("@daily", func() { runHousekeeping(st, log) }); err != nil {
		log.Error("failed to schedule housekeeping sweep", "err", err)
		os.Exit(1)
	}
	housekeeping.Start()

	log.Info("server started", "version", version, "commit", commit, "hostname", cfg.Hostname)

	<-ctx.Done()
	log.Info("shutting down")

	hkCtx := housekeeping.Stop()
	<-hkCtx.Done()

	agentLn.Close()

	shutCtx, shutCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutCancel()
	_ = operatorSrv.Shutdown(shutCtx)

	log.Info("shutdown complete")
}

// buildNotifiers assembles the notification fan-out chain from config: a
// log notifier is always present, MQTT/webhook channels are added only
// when their settings are non-empty.
func buildNotifiers(cfg *config.Config, log *logging.Logger) []notify.Notifier {
	notifiers := []notify.Notifier{notify.NewLogNotifier(log.Logger)}
	if cfg.MQTTBroker != "" {
		notifiers = append(notifiers, notify.NewMQTT(cfg.MQTTBroker, cfg.MQTTTopic, "", "", "", 0))
	}
	if cfg.WebhookURL != "" {
		notifiers = append(notifiers, notify.NewWebhook(cfg.WebhookURL, nil))
	}
	return notifiers
}

// runHousekeeping prunes stale sessions, superseded object versions, and
// old dismissed messages (internal/store/housekeeping.go), once per sweep.
func runHousekeeping(st *store.Store, log *logging.Logger) {
	if n, err := st.PruneExpiredSessions(sessionMaxAge); err != nil {
		log.Error("housekeeping: prune sessions failed", "err", err)
	} else if n > 0 {
		log.Info("housekeeping: pruned expired sessions", "count", n)
	}
	if n, err := st.PruneOldObjectVersions(objectVersionMaxAge); err != nil {
		log.Error("housekeeping: prune object versions failed", "err", err)
	} else if n > 0 {
		log.Info("housekeeping: pruned object versions", "count", n)
	}
	if n, err := st.PruneDismissedMessages(dismissedMessageMaxAge); err != nil {
		log.Error("housekeeping: prune messages failed", "err", err)
	} else if n > 0 {
		log.Info("housekeeping: pruned dismissed messages", "count", n)
	}

	if n, err := st.CountUndismissed(); err != nil {
		log.Error("housekeeping: count undismissed messages failed", "err", err)
	} else {
		metrics.UndismissedMessages.Set(float64(n))
	}
}
