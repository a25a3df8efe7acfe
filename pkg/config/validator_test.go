package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func validConfig() *Config {
	return &Config{
		Server:     DefaultServerConfig(),
		Queue:      DefaultQueueConfig(),
		Credit:     DefaultCreditConfig(),
		Planner:    DefaultPlannerConfig(),
		Supervisor: DefaultSupervisorConfig(),
		Tools:      NewToolRegistry(builtinTools()),
		Providers:  NewProviderRegistry(builtinProviders()),
		Chains:     NewChainRegistry(builtinChains()),
	}
}

func TestValidateAllAcceptsBuiltins(t *testing.T) {
	err := NewValidator(validConfig()).ValidateAll()
	assert.NoError(t, err)
}

func TestValidateQueueRejectsJitterGreaterThanInterval(t *testing.T) {
	cfg := validConfig()
	cfg.Queue.PollIntervalJitter = cfg.Queue.PollInterval + 1

	err := NewValidator(cfg).ValidateAll()
	assert.Error(t, err)
}

func TestValidateChainsRejectsUnknownProvider(t *testing.T) {
	cfg := validConfig()
	cfg.Chains = NewChainRegistry(map[string]FallbackChainEntry{
		"broken": {Name: "broken", Providers: []string{"ghost"}},
	})

	err := NewValidator(cfg).ValidateAll()
	assert.ErrorIs(t, err, ErrInvalidReference)
}

func TestValidateCreditRejectsZeroBudget(t *testing.T) {
	cfg := validConfig()
	cfg.Credit.DefaultBudget = 0

	err := NewValidator(cfg).ValidateAll()
	assert.Error(t, err)
}
