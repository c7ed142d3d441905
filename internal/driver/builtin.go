package driver

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/GlaceonBot/Jolteon/internal/driver/console"
)

// NewBuiltinRegistry constructs the runtime registry with all built-in drivers.
func NewBuiltinRegistry() (*Registry, error) {
	return NewRegistry([]Descriptor{
		{
			Type:     console.DriverType,
			Platform: console.DriverPlatform,
			Builder: func(
				_ context.Context,
				definition Definition,
				builderLogger *slog.Logger,
			) (Runtime, error) {
				runtimeDriver, dispatcher, err := console.BuildRuntimeFromConfig(
					definition.Name,
					builderLogger,
					definition.Config,
				)
				if err != nil {
					return Runtime{}, fmt.Errorf("build console runtime from config: %w", err)
				}

				return Runtime{
					Driver:     runtimeDriver,
					Dispatcher: dispatcher,
				}, nil
			},
		},
	})
}
