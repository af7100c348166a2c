// internal/app/app.go
package app

import (
	"context"
	"fmt"
	"os"

	"physioportal-client/internal/config"
	"physioportal-client/internal/db"
	"physioportal-client/internal/gateway"
	"physioportal-client/internal/pkg/flash"
	"physioportal-client/internal/pkg/session"
	"physioportal-client/internal/service/subscription"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// App wires config, session persistence, the API gateway and the services
// behind the CLI commands.
type App struct {
	cfg      config.AppConfig
	logger   *zap.Logger
	sessions *session.Manager
	gw       *gateway.Client
	msgs     *flash.Center
	plans    *subscription.PlanService
	redis    *redis.Client
}

func New(ctx context.Context, cfg config.AppConfig, logger *zap.Logger) (*App, error) {
	store, rdb, err := buildStore(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	sessions := session.NewManager(store, logger)
	if err := sessions.Restore(ctx); err != nil {
		// A corrupt session file should not brick the CLI; start clean.
		logger.Warn("failed to restore session, starting unauthenticated", zap.Error(err))
	}

	msgs := flash.NewCenter()
	msgs.Subscribe(printMessage)

	gw := gateway.NewClient(cfg.APIBaseURL, cfg.PortalHost, sessions, logger)

	return &App{
		cfg:      cfg,
		logger:   logger,
		sessions: sessions,
		gw:       gw,
		msgs:     msgs,
		plans:    subscription.NewPlanService(gw, logger),
		redis:    rdb,
	}, nil
}

// Run dispatches a CLI subcommand.
func (a *App) Run(ctx context.Context, args []string) error {
	if len(args) == 0 {
		printUsage()
		return nil
	}

	switch args[0] {
	case "login":
		return a.runLogin(ctx)
	case "register":
		return a.runRegister(ctx)
	case "logout":
		return a.runLogout(ctx)
	case "whoami":
		return a.runWhoami(ctx)
	case "plans":
		return a.runPlans(ctx)
	case "help":
		printUsage()
		return nil
	default:
		printUsage()
		return fmt.Errorf("unknown command: %s", args[0])
	}
}

// Close releases background resources.
func (a *App) Close() {
	if a.redis != nil {
		_ = a.redis.Close()
	}
}

func buildStore(_ context.Context, cfg config.AppConfig, logger *zap.Logger) (session.Store, *redis.Client, error) {
	switch cfg.SessionBackend {
	case "redis":
		rdb, err := db.NewRedisClient(db.RedisConfig{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPass,
		})
		if err != nil {
			return nil, nil, err
		}
		logger.Debug("using redis session backend", zap.String("addr", cfg.RedisAddr))
		return session.NewRedisStore(rdb, cfg.SessionGroup), rdb, nil
	case "file":
		store, err := session.NewFileStore(cfg.SessionFile)
		if err != nil {
			return nil, nil, err
		}
		return store, nil, nil
	default:
		return nil, nil, fmt.Errorf("unknown session backend: %s", cfg.SessionBackend)
	}
}

// printMessage renders the single transient message surface. Errors and
// successes share the slot; a zero message is the auto-clear and needs no
// output on a scrolling terminal.
func printMessage(m flash.Message) {
	switch m.Kind {
	case flash.Error:
		fmt.Fprintf(os.Stderr, "\n  ✗ %s\n\n", m.Text)
	case flash.Success:
		fmt.Fprintf(os.Stderr, "\n  ✓ %s\n\n", m.Text)
	}
}

func printUsage() {
	fmt.Print(`PhysioPortal terminal client

Usage:
  portal <command>

Commands:
  login     Sign in with password or BankID
  register  Create a clinic account and subscribe
  whoami    Show the current session
  plans     List available subscription plans
  logout    Clear the stored session
  help      Show this help
`)
}
