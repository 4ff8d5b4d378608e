// Package app assembles the finance bot: configuration, infrastructure,
// flows, and the Telegram wiring handed to the core runtime.
package app

import (
	"fmt"
	"os"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"

	"github.com/m3rciful/finbot/app/finance"
	"github.com/m3rciful/finbot/app/flows"
	"github.com/m3rciful/finbot/core/bootstrap"
	"github.com/m3rciful/finbot/core/cmd"
	coreconfig "github.com/m3rciful/finbot/core/config"
	coredatabase "github.com/m3rciful/finbot/core/database"
	"github.com/m3rciful/finbot/core/logger"
	"github.com/m3rciful/finbot/core/session"
	coretelegram "github.com/m3rciful/finbot/core/telegram"
	"github.com/m3rciful/finbot/core/telegram/commands"
	"github.com/m3rciful/finbot/core/telegram/router"
)

// Config is the full bot configuration: the reusable core settings plus the
// finance backend and database sections specific to this bot.
type Config struct {
	Core     coreconfig.Config   `yaml:",inline"`
	Database coredatabase.Config `yaml:"database"`
	Finance  finance.Config      `yaml:"finance"`
}

// CoreConfig satisfies cmd.ConfigCarrier.
func (c *Config) CoreConfig() *coreconfig.Config { return &c.Core }

// LoadConfig reads the YAML config and applies environment overrides.
func LoadConfig(path string) (cmd.ConfigCarrier, error) {
	var cfg Config

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("app: read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("app: parse config: %w", err)
	}
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("app: process env: %w", err)
	}
	if err := coreconfig.Normalize(&cfg.Core); err != nil {
		return nil, fmt.Errorf("app: %w", err)
	}
	if cfg.Finance.BaseURL == "" {
		return nil, fmt.Errorf("app: finance.base_url is required")
	}
	return &cfg, nil
}

// App holds everything a running bot needs.
type App struct {
	cfg   *Config
	flows *flows.Flows
	disp  *session.Dispatcher
}

// Bootstrap initializes infrastructure per the configured session backend,
// builds the session engine and the finance client, and registers the flows.
func Bootstrap(carrier cmd.ConfigCarrier) (cmd.TelegramApp, error) {
	cfg, ok := carrier.(*Config)
	if !ok {
		return nil, fmt.Errorf("app: unexpected config type %T", carrier)
	}

	var store session.Store
	switch cfg.Core.Session.Backend {
	case coreconfig.SessionBackendPostgres:
		res, err := bootstrap.Run(bootstrap.Options{
			Config:   &cfg.Core,
			Database: cfg.Database,
		})
		if err != nil {
			return nil, err
		}
		store = session.NewPostgresStore(res.DB)
	case coreconfig.SessionBackendMemory:
		if err := logger.InitLogger(&cfg.Core); err != nil {
			return nil, fmt.Errorf("app: logger init failed: %w", err)
		}
		store = session.NewMemoryStore()
	default:
		return nil, fmt.Errorf("app: unknown session backend %q", cfg.Core.Session.Backend)
	}

	mgr := session.NewManager(store, session.Options{
		StoreTTL:   time.Duration(cfg.Core.Session.StoreTTLHours) * time.Hour,
		StaleAfter: time.Duration(cfg.Core.Session.StaleAfterSeconds) * time.Second,
	})

	api, err := finance.NewClient(cfg.Finance)
	if err != nil {
		return nil, fmt.Errorf("app: finance client: %w", err)
	}

	fl := flows.New(mgr, api)
	if err := fl.Register(); err != nil {
		return nil, err
	}

	return &App{
		cfg:   cfg,
		flows: fl,
		disp:  session.NewDispatcher(mgr),
	}, nil
}

// TelegramRunOptions wires commands, callbacks, and routes for the core
// Telegram runtime.
func (a *App) TelegramRunOptions() (coretelegram.RunOptions, error) {
	reg := coretelegram.NewRegistry()

	reg.RegisterCommand("/start", commands.Command{
		Handler:     a.flows.Start,
		Description: "Start or restart onboarding",
	})
	reg.RegisterCommand("/help", commands.Command{
		Handler:     a.flows.Help,
		Description: "What the bot understands",
	})
	reg.RegisterCommand("/cancel", commands.Command{
		Handler:     a.flows.Cancel,
		Description: "Abandon the current step",
	})
	reg.RegisterCommand("/history", commands.Command{
		Handler:     a.flows.ShowHistory,
		Description: "Browse transactions",
	})
	reg.RegisterCommand("/stats", commands.Command{
		Handler:     a.flows.ShowStats,
		Description: "Weekly spending summary",
	})
	reg.RegisterCommand("/accounts", commands.Command{
		Handler:     a.flows.ListAccounts,
		Description: "List accounts",
	})
	reg.RegisterCommand("/newaccount", commands.Command{
		Handler:     a.flows.StartAccountCreation,
		Description: "Add an account",
	})

	for key, handler := range a.flows.Callbacks() {
		if err := reg.RegisterCallback(key, handler); err != nil {
			return coretelegram.RunOptions{}, fmt.Errorf("app: %w", err)
		}
	}

	// Commands get their own endpoints so they escape an active flow; only
	// non-command text reaches the dispatch engine.
	routes := router.CommandRoutes(reg, router.CommandRouteOptions{
		AdminID: a.cfg.Core.Telegram.AdminID,
	})
	routes = append(routes, router.MessageRoutes(a.disp, reg, router.MessageOptions{
		FreeText:     a.flows.HandleFreeText,
		UnknownMedia: a.flows.HandleUnknownMedia,
	})...)
	routes = append(routes, router.CallbackRoute(a.disp, reg, router.CallbackOptions{}))

	return coretelegram.RunOptions{
		Config:      &a.cfg.Core,
		Registry:    reg,
		Middlewares: coretelegram.DefaultMiddlewares(&a.cfg.Core, nil),
		Routes:      routes,
	}, nil
}
