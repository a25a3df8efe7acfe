package config

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"dario.cat/mergo"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/conductor-run/conductor/pkg/model"
)

var structValidator = validator.New(validator.WithRequiredStructEnabled())

// conductorYAMLConfig is the shape of conductor.yaml: everything except the
// LLM provider catalog, which lives in its own file so credentials-adjacent
// configuration can be managed separately.
type conductorYAMLConfig struct {
	Server     *ServerConfig                 `yaml:"server"`
	Queue      *QueueConfig                  `yaml:"queue"`
	Events     *EventConfig                  `yaml:"events"`
	Credit     *CreditConfig                 `yaml:"credit"`
	Slack      *SlackConfig                  `yaml:"slack"`
	Planner    *PlannerConfig                `yaml:"planner"`
	Supervisor *SupervisorConfig             `yaml:"supervisor"`

	Defaults *model.RunConfig             `yaml:"defaults"`
	Tools    map[string]ToolCatalogEntry  `yaml:"tools"`
	Chains   map[string]FallbackChainEntry `yaml:"fallback_chains"`
}

// llmProvidersYAMLConfig is the shape of llm-providers.yaml.
type llmProvidersYAMLConfig struct {
	Providers map[string]ProviderCatalogEntry `yaml:"llm_providers"`
}

// Initialize loads, validates, and returns ready-to-use configuration. This
// is the primary entry point cmd/conductord calls at startup.
//
// Steps performed:
//  1. Load YAML files from configDir
//  2. Expand environment variables
//  3. Merge built-in + user-defined tool/provider/chain catalogs
//  4. Build in-memory registries
//  5. Apply default values for anything left unset
//  6. Validate everything
func Initialize(ctx context.Context, configDir string) (*Config, error) {
	log := slog.With("config_dir", configDir)
	log.Info("loading configuration")

	cfg, err := load(configDir)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	stats := cfg.Stats()
	log.Info("configuration loaded",
		"tools", stats.Tools,
		"providers", stats.Providers,
		"chains", stats.Chains)

	return cfg, nil
}

func load(configDir string) (*Config, error) {
	l := &configLoader{configDir: configDir}

	conductorCfg, err := l.loadConductorYAML()
	if err != nil {
		return nil, NewLoadError("conductor.yaml", err)
	}

	providerEntries, err := l.loadLLMProvidersYAML()
	if err != nil {
		return nil, NewLoadError("llm-providers.yaml", err)
	}

	tools := mergeTools(builtinTools(), conductorCfg.Tools)
	providers := mergeProviders(builtinProviders(), providerEntries)
	chains := mergeChainEntries(builtinChains(), conductorCfg.Chains)

	for name, t := range tools {
		if err := structValidator.Struct(t); err != nil {
			return nil, NewValidationError("tool", name, "", err)
		}
	}
	for name, p := range providers {
		if err := structValidator.Struct(p); err != nil {
			return nil, NewValidationError("provider", name, "", err)
		}
	}
	for name, c := range chains {
		if err := structValidator.Struct(c); err != nil {
			return nil, NewValidationError("chain", name, "", err)
		}
	}

	server := DefaultServerConfig()
	if conductorCfg.Server != nil {
		if err := mergo.Merge(server, conductorCfg.Server, mergo.WithOverride); err != nil {
			return nil, fmt.Errorf("failed to merge server config: %w", err)
		}
	}

	queue := DefaultQueueConfig()
	if conductorCfg.Queue != nil {
		if err := mergo.Merge(queue, conductorCfg.Queue, mergo.WithOverride); err != nil {
			return nil, fmt.Errorf("failed to merge queue config: %w", err)
		}
	}

	events := DefaultEventConfig()
	if conductorCfg.Events != nil {
		if err := mergo.Merge(events, conductorCfg.Events, mergo.WithOverride); err != nil {
			return nil, fmt.Errorf("failed to merge events config: %w", err)
		}
	}

	credit := DefaultCreditConfig()
	if conductorCfg.Credit != nil {
		if err := mergo.Merge(credit, conductorCfg.Credit, mergo.WithOverride); err != nil {
			return nil, fmt.Errorf("failed to merge credit config: %w", err)
		}
	}

	slackCfg := DefaultSlackConfig()
	if conductorCfg.Slack != nil {
		if err := mergo.Merge(slackCfg, conductorCfg.Slack, mergo.WithOverride); err != nil {
			return nil, fmt.Errorf("failed to merge slack config: %w", err)
		}
	}

	planner := DefaultPlannerConfig()
	if conductorCfg.Planner != nil {
		if err := mergo.Merge(planner, conductorCfg.Planner, mergo.WithOverride); err != nil {
			return nil, fmt.Errorf("failed to merge planner config: %w", err)
		}
	}

	supervisor := DefaultSupervisorConfig()
	if conductorCfg.Supervisor != nil {
		if err := mergo.Merge(supervisor, conductorCfg.Supervisor, mergo.WithOverride); err != nil {
			return nil, fmt.Errorf("failed to merge supervisor config: %w", err)
		}
	}

	defaultRunConfig := model.DefaultRunConfig()
	if conductorCfg.Defaults != nil {
		defaultRunConfig = defaultRunConfig.Merge(*conductorCfg.Defaults)
	}

	return &Config{
		configDir:        configDir,
		Server:           server,
		Queue:            queue,
		Events:           events,
		Credit:           credit,
		Slack:            slackCfg,
		Planner:          planner,
		Supervisor:       supervisor,
		DefaultRunConfig: defaultRunConfig,
		Tools:            NewToolRegistry(tools),
		Providers:        NewProviderRegistry(providers),
		Chains:           NewChainRegistry(chains),
	}, nil
}

func validate(cfg *Config) error {
	v := NewValidator(cfg)
	return v.ValidateAll()
}

type configLoader struct {
	configDir string
}

func (l *configLoader) loadYAML(filename string, target any) error {
	path := filepath.Join(l.configDir, filename)

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			// Absence of an optional file is not fatal; every component has
			// a builtin fallback. The caller decides whether zero-value
			// unmarshal target is acceptable.
			return nil
		}
		return err
	}

	data = ExpandEnv(data)

	if err := yaml.Unmarshal(data, target); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidYAML, err)
	}
	return nil
}

func (l *configLoader) loadConductorYAML() (*conductorYAMLConfig, error) {
	cfg := &conductorYAMLConfig{
		Tools:  make(map[string]ToolCatalogEntry),
		Chains: make(map[string]FallbackChainEntry),
	}
	if err := l.loadYAML("conductor.yaml", cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (l *configLoader) loadLLMProvidersYAML() (map[string]ProviderCatalogEntry, error) {
	cfg := &llmProvidersYAMLConfig{Providers: make(map[string]ProviderCatalogEntry)}
	if err := l.loadYAML("llm-providers.yaml", cfg); err != nil {
		return nil, err
	}
	return cfg.Providers, nil
}
