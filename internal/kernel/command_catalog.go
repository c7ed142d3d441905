package kernel

import (
	"github.com/GlaceonBot/Jolteon/pkg/jolteon"
)

// kernelCommandCatalog exposes kernel command registrations through ServiceRegistry.
type kernelCommandCatalog struct {
	kernel *Kernel
}

// Commands returns all registered command specs in registration order.
func (c *kernelCommandCatalog) Commands() []jolteon.CommandSpec {
	if c == nil || c.kernel == nil {
		return nil
	}

	c.kernel.mu.RLock()
	defer c.kernel.mu.RUnlock()

	commands := make([]jolteon.CommandSpec, 0, len(c.kernel.commandOrder))
	for _, name := range c.kernel.commandOrder {
		registration, exists := c.kernel.commands[name]
		if !exists {
			continue
		}
		commands = append(commands, cloneCommandSpec(registration.spec))
	}

	return commands
}

var _ jolteon.CommandCatalog = (*kernelCommandCatalog)(nil)
