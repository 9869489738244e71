// Command server runs the compliance core behind its HTTP reference host.
// Stores are selected by configuration: Postgres and Redis when configured,
// in-memory otherwise.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"caregate/internal/audit"
	"caregate/internal/consent"
	"caregate/internal/credential"
	"caregate/internal/gate"
	"caregate/internal/lockout"
	"caregate/internal/platform/config"
	"caregate/internal/platform/httpserver"
	"caregate/internal/platform/logger"
	"caregate/internal/platform/metrics"
	platformredis "caregate/internal/platform/redis"
	"caregate/internal/session"
	"caregate/internal/sharelink"
	"caregate/internal/storage"
	httptransport "caregate/internal/transport/http"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	cfg := config.FromEnv()
	log := logger.New()
	m := metrics.New()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Record and audit stores: Postgres when configured, memory otherwise.
	var recordStore storage.RecordStore
	var auditStore audit.Store
	if cfg.PostgresDSN != "" {
		db, err := storage.OpenPostgres(ctx, cfg.PostgresDSN)
		if err != nil {
			return err
		}
		defer db.Close()

		pgRecords := storage.NewPostgres(db)
		if err := pgRecords.Schema(ctx); err != nil {
			return err
		}
		pgAudit := audit.NewPostgres(db)
		if err := pgAudit.Schema(ctx); err != nil {
			return err
		}
		recordStore, auditStore = pgRecords, pgAudit
		log.Info("using postgres stores")
	} else {
		recordStore, auditStore = storage.NewInMemoryRecordStore(), audit.NewInMemoryStore()
		log.Info("using in-memory stores")
	}

	// Lockout state: Redis when configured so lockouts hold across
	// instances, memory otherwise.
	var lockoutStore lockout.Store
	redisClient, err := platformredis.New(cfg.RedisURL)
	if err != nil {
		return err
	}
	if redisClient != nil {
		defer redisClient.Close()
		lockoutStore = lockout.NewRedisStore(redisClient.Client)
		log.Info("using redis lockout store")
	} else {
		lockoutStore = lockout.NewInMemoryStore()
	}

	auditor, err := audit.New(auditStore, audit.WithLogger(log), audit.WithMetrics(m))
	if err != nil {
		return err
	}
	sessions, err := session.NewManager(cfg.SessionTimeout,
		session.WithSingleSessionMode(cfg.SingleSessionMode),
		session.WithAuditRecorder(auditor),
		session.WithLogger(log),
		session.WithMetrics(m),
	)
	if err != nil {
		return err
	}
	credentials, err := credential.NewValidator(recordStore,
		credential.WithAuditRecorder(auditor),
		credential.WithLogger(log),
	)
	if err != nil {
		return err
	}

	consentOpts := []consent.Option{
		consent.WithConsentValidity(time.Duration(cfg.ConsentValidityDays) * 24 * time.Hour),
		consent.WithRetentionDays(cfg.DefaultRetentionDays),
		consent.WithAuditRecorder(auditor),
		consent.WithLogger(log),
	}
	for action, fields := range cfg.MinimizationRules {
		consentOpts = append(consentOpts, consent.WithMinimizationRule(action, fields))
	}
	consents, err := consent.NewEngine(recordStore, consentOpts...)
	if err != nil {
		return err
	}

	g, err := gate.New(sessions, consents, auditor,
		gate.WithLogger(log),
		gate.WithMetrics(m),
	)
	if err != nil {
		return err
	}
	lockouts, err := lockout.New(lockoutStore,
		lockout.WithMaxAttempts(cfg.LockoutMaxAttempts),
		lockout.WithWindow(cfg.LockoutWindow),
		lockout.WithAuditRecorder(auditor),
		lockout.WithLogger(log),
		lockout.WithMetrics(m),
	)
	if err != nil {
		return err
	}

	var links *sharelink.Service
	if cfg.ShareLinkSigningKey != "" {
		links, err = sharelink.New([]byte(cfg.ShareLinkSigningKey),
			sharelink.WithMaxTTL(cfg.ShareLinkMaxTTL),
			sharelink.WithAuditRecorder(auditor),
			sharelink.WithLogger(log),
		)
		if err != nil {
			return err
		}
	} else {
		log.Warn("share links disabled, no signing key configured")
	}

	router := httptransport.NewRouter(httptransport.Deps{
		Sessions:    sessions,
		Credentials: credentials,
		Consents:    consents,
		Gate:        g,
		Auditor:     auditor,
		Lockouts:    lockouts,
		ShareLinks:  links,
	})
	server := httpserver.New(cfg.Addr, router)

	group, ctx := errgroup.WithContext(ctx)
	group.Go(func() error {
		log.Info("server listening", "addr", cfg.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	group.Go(func() error {
		err := sessions.RunSweeper(ctx, cfg.SweepInterval)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})
	group.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		log.Info("shutting down")
		return server.Shutdown(shutdownCtx)
	})

	return group.Wait()
}
