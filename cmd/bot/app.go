package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/GlaceonBot/Jolteon/internal/config"
	"github.com/GlaceonBot/Jolteon/internal/driver"
	"github.com/GlaceonBot/Jolteon/internal/driver/console"
	"github.com/GlaceonBot/Jolteon/internal/kernel"
	"github.com/GlaceonBot/Jolteon/internal/reporting"
	"github.com/GlaceonBot/Jolteon/internal/storage"
	"github.com/GlaceonBot/Jolteon/modules/help"
	"github.com/GlaceonBot/Jolteon/modules/prefix"
	"github.com/GlaceonBot/Jolteon/modules/tags"
	"github.com/GlaceonBot/Jolteon/pkg/jolteon"
)

func run(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("validate config: %w", err)
	}

	logger, err := buildLogger(cfg)
	if err != nil {
		return err
	}

	store, err := storage.Open(cfg.Database.Driver, cfg.Database.DSN, logger)
	if err != nil {
		return fmt.Errorf("open storage: %w", err)
	}
	defer func() {
		if closeErr := store.Close(); closeErr != nil {
			logger.Error("closing storage failed", "error", closeErr)
		}
	}()

	kernelRuntime := kernel.New(
		kernel.WithLogger(logger),
		kernel.WithModuleHookTimeout(cfg.Kernel.ModuleHookTimeout),
		kernel.WithShutdownTimeout(cfg.Kernel.ShutdownTimeout),
		kernel.WithDefaultSubscriptionBuffer(cfg.Kernel.SubscriptionBuffer),
		kernel.WithDefaultSubscriptionWorkers(cfg.Kernel.SubscriptionWorkers),
		kernel.WithDefaultHandlerTimeout(cfg.Kernel.HandlerTimeout),
	)

	runtimes, err := buildDriverRuntimes(ctx, cfg, logger)
	if err != nil {
		return err
	}
	dispatcher, err := driver.PrimaryDispatcher(runtimes)
	if err != nil {
		return fmt.Errorf("select dispatcher: %w", err)
	}

	if err := registerServices(kernelRuntime, cfg, logger, store, dispatcher, runtimes); err != nil {
		return err
	}
	for _, runtime := range runtimes {
		if err := kernelRuntime.RegisterDriver(runtime.Driver); err != nil {
			return fmt.Errorf("register driver %s: %w", runtime.Driver.Name(), err)
		}
	}
	if err := registerModules(ctx, kernelRuntime, cfg, logger); err != nil {
		return err
	}

	runCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := kernelRuntime.Run(runCtx); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("run kernel: %w", err)
	}

	return nil
}

func buildLogger(cfg *config.Config) (*slog.Logger, error) {
	level, err := cfg.Log.SlogLevel()
	if err != nil {
		return nil, err
	}

	destination := io.Writer(os.Stdout)
	if cfg.Log.File != "" {
		file, err := os.OpenFile(cfg.Log.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, fmt.Errorf("open log file: %w", err)
		}
		destination = file
	}

	options := &slog.HandlerOptions{Level: level}
	if cfg.Log.Format == "text" {
		return slog.New(slog.NewTextHandler(destination, options)), nil
	}

	return slog.New(slog.NewJSONHandler(destination, options)), nil
}

func buildDriverRuntimes(
	ctx context.Context,
	cfg *config.Config,
	logger *slog.Logger,
) ([]driver.Runtime, error) {
	registry, err := driver.NewBuiltinRegistry()
	if err != nil {
		return nil, fmt.Errorf("new builtin driver registry: %w", err)
	}

	definitions, err := driverDefinitions(cfg)
	if err != nil {
		return nil, err
	}

	runtimes, err := registry.BuildEnabled(ctx, definitions, logger)
	if err != nil {
		return nil, fmt.Errorf("build drivers: %w", err)
	}
	if len(runtimes) == 0 {
		return nil, fmt.Errorf("no drivers enabled")
	}

	return runtimes, nil
}

func driverDefinitions(cfg *config.Config) ([]driver.Definition, error) {
	consoleConfig, err := json.Marshal(console.Config{
		CommunityID:    cfg.Console.CommunityID,
		ConversationID: cfg.Console.ConversationID,
		Username:       cfg.Console.Username,
		Status:         cfg.Bot.Status,
		ActivityText:   cfg.Bot.ActivityText,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal console driver config: %w", err)
	}

	return []driver.Definition{
		{
			Name:    "console",
			Type:    console.DriverType,
			Enabled: cfg.Console.Enabled,
			Config:  consoleConfig,
		},
	}, nil
}

func registerServices(
	kernelRuntime *kernel.Kernel,
	cfg *config.Config,
	logger *slog.Logger,
	store *storage.Store,
	dispatcher jolteon.Dispatcher,
	runtimes []driver.Runtime,
) error {
	if err := kernelRuntime.RegisterService(jolteon.ServiceLogger, logger); err != nil {
		return err
	}
	if err := kernelRuntime.RegisterService(jolteon.ServiceDispatcher, dispatcher); err != nil {
		return err
	}
	if err := kernelRuntime.RegisterService(jolteon.ServiceTagStore, store); err != nil {
		return err
	}
	if err := kernelRuntime.RegisterService(jolteon.ServicePrefixStore, store); err != nil {
		return err
	}
	if err := kernelRuntime.RegisterService(jolteon.ServiceBotIdentity, runtimes[0].Driver.Identity()); err != nil {
		return err
	}

	if cfg.Bot.OperatorConversationID != "" {
		reporter, err := reporting.New(dispatcher, cfg.Bot.OperatorConversationID, logger)
		if err != nil {
			return fmt.Errorf("new operator reporter: %w", err)
		}
		if err := kernelRuntime.RegisterService(jolteon.ServiceOperatorReporter, reporter); err != nil {
			return err
		}
	} else {
		logger.Warn("no operator conversation configured, command failures will only be logged")
	}

	return nil
}

func registerModules(
	ctx context.Context,
	kernelRuntime *kernel.Kernel,
	cfg *config.Config,
	logger *slog.Logger,
) error {
	// Registration order matters: the prefix module provides the prefix
	// resolution service that help depends on.
	modules := []jolteon.Module{
		prefix.New(cfg.Bot.DefaultPrefix, logger),
		tags.New(cfg.Bot.RetractionTimeout, logger),
		help.New(logger),
	}
	for _, module := range modules {
		if err := kernelRuntime.RegisterModule(ctx, module); err != nil {
			return fmt.Errorf("register module %s: %w", module.Name(), err)
		}
	}

	return nil
}
