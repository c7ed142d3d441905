package jolteon

import (
	"context"
	"fmt"
)

// Canonical service registry keys shared across modules and the kernel.
const (
	// ServiceLogger is the optional structured logger service.
	ServiceLogger = "jolteon.logger"
	// ServiceDispatcher is the outbound message dispatcher service.
	ServiceDispatcher = "jolteon.dispatcher"
	// ServiceTagStore is the persistent tag storage service.
	ServiceTagStore = "jolteon.tag_store"
	// ServicePrefixStore is the persistent prefix storage service.
	ServicePrefixStore = "jolteon.prefix_store"
	// ServicePrefixResolver is the per-community prefix resolution service.
	ServicePrefixResolver = "jolteon.prefix_resolver"
	// ServiceBotIdentity is the transport-supplied bot identity service.
	ServiceBotIdentity = "jolteon.bot_identity"
	// ServiceOperatorReporter is the operator error-channel reporting service.
	ServiceOperatorReporter = "jolteon.operator_reporter"
	// ServiceCommandCatalog is the registered-command lookup service.
	ServiceCommandCatalog = "jolteon.command_catalog"
)

// OperatorReporter forwards failure diagnostics to the operator conversation.
type OperatorReporter interface {
	// Report delivers one diagnostic for a failed command invocation.
	// Long diagnostics are chunked by the implementation.
	Report(ctx context.Context, commandName string, diagnostic string) error
}

// ServiceRegistry provides runtime dependency injection to modules and drivers.
type ServiceRegistry interface {
	// Register binds a singleton service value to a stable name.
	Register(name string, service any) error
	// Resolve returns a registered service by name.
	Resolve(name string) (any, error)
}

// ResolveAs resolves a service and casts it to the requested type.
func ResolveAs[T any](registry ServiceRegistry, name string) (T, error) {
	var zero T

	service, err := registry.Resolve(name)
	if err != nil {
		return zero, fmt.Errorf("resolve service %s: %w", name, err)
	}

	typed, ok := service.(T)
	if !ok {
		return zero, fmt.Errorf("resolve service %s: type assertion failed", name)
	}

	return typed, nil
}
