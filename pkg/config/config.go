package config

import "github.com/conductor-run/conductor/pkg/model"

// Config is the fully resolved, validated configuration the orchestrator
// runs with. It is immutable after Initialize returns.
type Config struct {
	configDir string

	Server     *ServerConfig
	Queue      *QueueConfig
	Events     *EventConfig
	Credit     *CreditConfig
	Slack      *SlackConfig
	Planner    *PlannerConfig
	Supervisor *SupervisorConfig

	DefaultRunConfig model.RunConfig

	Tools     *ToolRegistry
	Providers *ProviderRegistry
	Chains    *ChainRegistry
}

// Stats summarizes the loaded configuration, mirroring the teacher's
// post-load log line.
type Stats struct {
	Tools     int
	Providers int
	Chains    int
}

// Stats computes a summary for startup logging.
func (c *Config) Stats() Stats {
	return Stats{
		Tools:     c.Tools.Len(),
		Providers: len(c.Providers.All()),
		Chains:    len(c.Chains.All()),
	}
}

// ConfigDir returns the directory Initialize loaded this configuration from.
func (c *Config) ConfigDir() string {
	return c.configDir
}
