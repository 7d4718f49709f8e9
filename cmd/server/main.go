package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"navguard/internal/enforcement"
	"navguard/internal/platform/config"
	"navguard/internal/platform/logger"
	"navguard/internal/platform/metrics"
	"navguard/internal/platform/ratelimit"
	"navguard/internal/playback"
	"navguard/internal/policy"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

const shutdownTimeout = 10 * time.Second

func main() {
	_ = config.Load()

	settings, err := config.LoadSettings()
	if err != nil {
		logger.New("error", "json", nil).Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	out := logger.Output(settings.LogFile)
	defer out.Close()
	log := logger.New(settings.LogLevel, settings.LogFormat, out)

	met := metrics.New()
	app, err := newApp(settings, log, met)
	if err != nil {
		log.Error("invalid configuration", "error", err)
		out.Close()
		os.Exit(1)
	}

	addr := ":" + settings.Port
	srv := &http.Server{Addr: addr, Handler: app.router()}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	log.Info("server starting",
		"port", settings.Port,
		"trusted_domains", app.rules.TrustedDomains(),
		"recovery_delay", settings.Recovery.Delay.String(),
		"rules_file", settings.RulesFile,
		"log_level", settings.LogLevel,
	)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	log.Info("shutdown signal received, draining connections")

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Error("shutdown error", "error", err)
		os.Exit(1)
	}

	log.Info("server stopped")
}

// app is the wired engine behind the HTTP server.
type app struct {
	settings config.Settings
	log      *slog.Logger
	met      *metrics.Metrics
	rules    *policy.RuleSet
	enf      *enforcement.Enforcer
	repo     *playback.InMemoryRepository
	hub      *playback.Hub
	svc      *playback.Service
}

// newApp validates the configuration and wires the engine. Any error is a
// configuration error and the server must not start.
func newApp(s config.Settings, log *slog.Logger, met *metrics.Metrics) (*app, error) {
	rules, err := policy.NewRuleSet(s.Policy.WithDefaults())
	if err != nil {
		return nil, err
	}

	templates := s.Templates.WithDefaults()
	if err := templates.Validate(rules); err != nil {
		return nil, err
	}

	er := s.Enforcement
	er.TrustedDomains = rules.TrustedDomains()
	enf, err := enforcement.New(er)
	if err != nil {
		return nil, err
	}
	if s.Recovery.Delay < 0 {
		return nil, fmt.Errorf("%w: recovery delay must not be negative", policy.ErrConfiguration)
	}

	repo := playback.NewInMemoryRepository()
	hub := playback.NewHub(0, met)
	svc := playback.NewService(repo, rules, playback.Options{
		Templates:     templates,
		RecoveryDelay: s.Recovery.Delay,
		RecoveryLimit: s.Recovery.Limit,
		Sink:          hub,
		Recorder:      met,
		Logger:        log,
	})

	return &app{
		settings: s,
		log:      log,
		met:      met,
		rules:    rules,
		enf:      enf,
		repo:     repo,
		hub:      hub,
		svc:      svc,
	}, nil
}

func (a *app) router() http.Handler {
	h := playback.NewHandler(a.svc, a.hub, a.enf, a.log)
	sweep := enforcement.NewHandler(a.enf, a.log)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(logger.RequestLogger(a.log))
	r.Use(metrics.RequestMiddleware(a.met))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		a.met.Handler(func() { a.met.SetActiveSessions(a.repo.ActiveCount()) }).ServeHTTP(w, r)
	})

	limit := ratelimit.PerIP(a.settings.RateLimit)
	h.RegisterRoutes(r, limit)
	r.With(limit).Post("/enforcement/sweep", sweep.Sweep)
	return r
}
