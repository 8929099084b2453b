package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/davidahmann/agentgate/internal/api"
	"github.com/davidahmann/agentgate/internal/approval"
	"github.com/davidahmann/agentgate/internal/audit"
	"github.com/davidahmann/agentgate/internal/auth"
	"github.com/davidahmann/agentgate/internal/config"
	"github.com/davidahmann/agentgate/internal/gate"
	"github.com/davidahmann/agentgate/internal/killswitch"
	"github.com/davidahmann/agentgate/internal/ledger"
	"github.com/davidahmann/agentgate/internal/ledger/pgstore"
	"github.com/davidahmann/agentgate/internal/ledger/sqlstore"
	"github.com/davidahmann/agentgate/internal/legacy"
	"github.com/davidahmann/agentgate/internal/logging"
	"github.com/davidahmann/agentgate/internal/metrics"
	"github.com/davidahmann/agentgate/internal/policy"
	"github.com/davidahmann/agentgate/internal/tools"
)

const shutdownTimeout = 10 * time.Second

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := runFn(ctx, os.Args[1:], os.Getenv, listenAndServe); err != nil {
		log.Fatal().Err(err).Msg("gateway_failed")
	}
}

var runFn = run

type envFn func(string) string
type listenFn func(*http.Server) error

func run(ctx context.Context, args []string, getenv envFn, listen listenFn) error {
	fs := flag.NewFlagSet("agentgate-gateway", flag.ContinueOnError)
	configPath := fs.String("config", "", "path to agentgate config file")
	if err := fs.Parse(args); err != nil {
		return err
	}
	cfgFile := *configPath
	if cfgFile == "" {
		cfgFile = getenv("AGENTGATE_CONFIG")
	}

	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	logging.Setup(cfg.Log.Level, cfg.Log.Format, nil)

	a, err := build(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.close()

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           a.handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		defer cancel()
		log.Info().Str("addr", cfg.ListenAddr).Str("policy_hash", a.policies.Current().Hash).Msg("gateway_listening")
		if err := listen(srv); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, done := context.WithTimeout(context.Background(), shutdownTimeout)
		defer done()
		return srv.Shutdown(shutdownCtx)
	})
	g.Go(func() error {
		return a.policies.Watch(gctx, cfg.PolicyReloadInterval)
	})
	if a.notifier != nil {
		g.Go(func() error {
			return a.notifier.Run(gctx, 0)
		})
	}
	if a.maintenance != nil {
		a.maintenance.Start()
		g.Go(func() error {
			<-gctx.Done()
			a.maintenance.Stop()
			return nil
		})
	}

	err = g.Wait()
	log.Info().Msg("gateway_stopped")
	return err
}

type app struct {
	handler     http.Handler
	gateway     *gate.Gateway
	policies    *policy.FileProvider
	notifier    *approval.WebhookNotifier
	maintenance *approval.Maintenance
	closers     []func() error
}

func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			log.Warn().Err(err).Msg("gateway_close_failed")
		}
	}
}

// build wires every collaborator from cfg. On error anything already
// opened is closed.
func build(ctx context.Context, cfg config.Config) (_ *app, err error) {
	a := &app{}
	defer func() {
		if err != nil {
			a.close()
		}
	}()

	store, closeStore, err := openStore(ctx, cfg.DB)
	if err != nil {
		return nil, fmt.Errorf("store: %w", err)
	}
	a.closers = append(a.closers, closeStore)

	ksStore, closeKS, err := openKillSwitch(ctx, cfg.KillSwitch)
	if err != nil {
		return nil, fmt.Errorf("kill switch: %w", err)
	}
	a.closers = append(a.closers, closeKS)
	ks := killswitch.New(ksStore)

	a.policies, err = policy.NewFileProvider(cfg.PolicyPath)
	if err != nil {
		return nil, fmt.Errorf("policy: %w", err)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	registry := tools.NewRegistry()
	client := &http.Client{Timeout: 30 * time.Second}
	for _, tc := range cfg.Tools {
		if err := registry.Register(tools.Webhook(tc, client)); err != nil {
			return nil, fmt.Errorf("tool %s: %w", tc.Name, err)
		}
	}

	approvalOpts := []approval.Option{approval.WithMetrics(m)}
	if cfg.Approvals.NotifyWebhookURL != "" {
		a.notifier = approval.NewWebhookNotifier(cfg.Approvals.NotifyWebhookURL)
		approvalOpts = append(approvalOpts, approval.WithNotifier(a.notifier))
	}
	approvals := approval.New(store, approvalOpts...)
	if a.notifier != nil {
		sent, err := approvals.RenotifyPending(ctx)
		if err != nil {
			log.Warn().Err(err).Int("sent", sent).Msg("approval_renotify_failed")
		} else if sent > 0 {
			log.Info().Int("sent", sent).Msg("approval_renotify")
		}
	}
	auditLog := audit.New(store, a.policies, audit.WithMetrics(m))

	deps := gate.Deps{
		Tools:      registry,
		Policy:     policy.NewEvaluator(a.policies, ks, policy.StaticIdentities(cfg.Identities)),
		Approvals:  approvals,
		Audit:      auditLog,
		History:    store,
		Redactors:  a.policies,
		KillSwitch: ks,
		Metrics:    m,
	}
	if lp := cfg.LegacyPolicy; lp.Enabled {
		deps.Legacy = legacy.New(legacy.Config{
			PHIMode:         lp.PHIMode,
			AllowlistNormal: lp.AllowlistNormal,
			AllowlistPHI:    lp.AllowlistPHI,
			AllowedDomains:  lp.AllowedDomains,
			PanicSwitch:     lp.PanicSwitch,
		})
	}
	if cfg.PlainAudit.Path != "" {
		deps.Sink = legacy.NewFileSink(cfg.PlainAudit.Path, cfg.PlainAudit.MaxBytes)
	}
	a.gateway = gate.New(deps)

	if cfg.Approvals.StaleAfter > 0 {
		a.maintenance, err = approval.NewMaintenance(cfg.Approvals.CleanupSchedule, a.gateway.StaleJob(cfg.Approvals.StaleAfter))
		if err != nil {
			return nil, err
		}
	}

	a.handler = api.NewRouter(&api.Handler{
		Auth:       auth.DevTokenAuthenticator{Token: cfg.Auth.DevToken},
		Gateway:    a.gateway,
		Approvals:  approvals,
		Audit:      auditLog,
		KillSwitch: ks,
		Policy:     a.policies,
		Gatherer:   reg,
	})
	return a, nil
}

func openStore(ctx context.Context, db config.DBConfig) (ledger.Store, func() error, error) {
	switch db.Driver {
	case "":
		log.Warn().Msg("using in-memory store; audit chain and approvals are lost on restart")
		return ledger.NewInMemoryStore(), func() error { return nil }, nil
	case "sqlite":
		s, err := sqlstore.OpenSQLite(db.DSN)
		if err != nil {
			return nil, nil, err
		}
		if err := ledger.Migrate(ctx, s.DB(), ledger.DBSQLite); err != nil {
			_ = s.Close()
			return nil, nil, err
		}
		return s, s.Close, nil
	case "postgres":
		s, err := pgstore.OpenPostgres(db.DSN)
		if err != nil {
			return nil, nil, err
		}
		if err := ledger.Migrate(ctx, s.DB(), ledger.DBPostgres); err != nil {
			_ = s.Close()
			return nil, nil, err
		}
		return s, s.Close, nil
	default:
		return nil, nil, fmt.Errorf("unsupported db driver: %s", db.Driver)
	}
}

func openKillSwitch(ctx context.Context, ks config.KillSwitchConfig) (killswitch.Store, func() error, error) {
	if ks.Backend != "redis" {
		return killswitch.NewMemoryStore(), func() error { return nil }, nil
	}
	client, err := killswitch.DialRedis(ctx, ks.RedisURL)
	if err != nil {
		return nil, nil, err
	}
	var opts []killswitch.RedisOption
	if ks.RedisKey != "" {
		opts = append(opts, killswitch.WithKey(ks.RedisKey))
	}
	return killswitch.NewRedisStore(client, opts...), client.Close, nil
}

func listenAndServe(server *http.Server) error {
	return server.ListenAndServe()
}
