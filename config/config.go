package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/anthropics/anthropic-sdk-go"

	"github.com/hupe1980/flowmesh/agent"
	"github.com/hupe1980/flowmesh/logging"
	"github.com/hupe1980/flowmesh/model"
	flowanthropic "github.com/hupe1980/flowmesh/model/anthropic"
	flowopenai "github.com/hupe1980/flowmesh/model/openai"
	"github.com/hupe1980/flowmesh/workflow"
)

// Agent kinds accepted in AgentConfig.Kind.
const (
	AgentKindSimulated = "simulated"
	AgentKindAnthropic = "anthropic"
	AgentKindOpenAI    = "openai"
)

// Duration wraps time.Duration so YAML and JSON configs can use human
// readable values such as "30s" or "5m".
type Duration time.Duration

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalJSON implements json.Marshaler.
func (d Duration) MarshalJSON() ([]byte, error) {
	return []byte(fmt.Sprintf("%q", time.Duration(d).String())), nil
}

// UnmarshalJSON implements json.Unmarshaler.
func (d *Duration) UnmarshalJSON(data []byte) error {
	raw := string(data)
	if len(raw) >= 2 && raw[0] == '"' && raw[len(raw)-1] == '"' {
		raw = raw[1 : len(raw)-1]
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

// ServerConfig configures the HTTP API server.
type ServerConfig struct {
	Addr string `yaml:"addr"`
}

// LoggingConfig configures the structured logger.
type LoggingConfig struct {
	Level     string `yaml:"level"`
	Format    string `yaml:"format"`
	AddSource bool   `yaml:"add_source"`
}

// MetricsConfig toggles Prometheus instrumentation.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
}

// OrchestratorConfig tunes orchestrator behavior.
type OrchestratorConfig struct {
	// PausePollInterval is how often a paused run re-checks its status.
	PausePollInterval Duration `yaml:"pause_poll_interval"`
}

// AgentConfig declares one agent to register at startup.
type AgentConfig struct {
	Name       string `yaml:"name"`
	Capability string `yaml:"capability"`
	// Kind is simulated, anthropic or openai.
	Kind          string `yaml:"kind"`
	MaxConcurrent int    `yaml:"max_concurrent"`
	// Model selects the model id for anthropic/openai agents.
	Model string `yaml:"model"`
	// Instruction is passed as system guidance to model-backed agents.
	Instruction string `yaml:"instruction"`
	// APIKeyEnv names the environment variable holding the provider API key.
	APIKeyEnv string `yaml:"api_key_env"`
	// Latency is the simulated work duration for simulated agents.
	Latency Duration `yaml:"latency"`
}

// Config is the full application configuration.
type Config struct {
	Server       ServerConfig       `yaml:"server"`
	Logging      LoggingConfig      `yaml:"logging"`
	Metrics      MetricsConfig      `yaml:"metrics"`
	Orchestrator OrchestratorConfig `yaml:"orchestrator"`
	Agents       []AgentConfig      `yaml:"agents"`
}

// Default returns the configuration used when no file is provided: a local
// server with JSON logging, metrics enabled and one simulated agent per
// pipeline capability.
func Default() *Config {
	capabilities := []workflow.Capability{
		workflow.CapabilityRequirementAnalysis,
		workflow.CapabilityArchitecturePlanning,
		workflow.CapabilityTemplateSelection,
		workflow.CapabilityCodeGeneration,
		workflow.CapabilityTesting,
		workflow.CapabilityDeployment,
	}

	agents := make([]AgentConfig, 0, len(capabilities))
	for _, c := range capabilities {
		agents = append(agents, AgentConfig{
			Name:       fmt.Sprintf("%s-agent", c),
			Capability: string(c),
			Kind:       AgentKindSimulated,
			Latency:    Duration(100 * time.Millisecond),
		})
	}

	return &Config{
		Server:       ServerConfig{Addr: ":8080"},
		Logging:      LoggingConfig{Level: "info", Format: "json"},
		Metrics:      MetricsConfig{Enabled: true},
		Orchestrator: OrchestratorConfig{PausePollInterval: Duration(100 * time.Millisecond)},
		Agents:       agents,
	}
}

// Load reads the YAML config at path, layered over Default. Environment
// variables FLOWMESH_ADDR, FLOWMESH_LOG_LEVEL and FLOWMESH_LOG_FORMAT
// override the file. An empty path loads defaults plus env overrides.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if addr := os.Getenv("FLOWMESH_ADDR"); addr != "" {
		cfg.Server.Addr = addr
	}
	if level := os.Getenv("FLOWMESH_LOG_LEVEL"); level != "" {
		cfg.Logging.Level = level
	}
	if format := os.Getenv("FLOWMESH_LOG_FORMAT"); format != "" {
		cfg.Logging.Format = format
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate rejects configs the application cannot start with.
func (c *Config) Validate() error {
	if c.Server.Addr == "" {
		return fmt.Errorf("config: server addr must not be empty")
	}
	if _, err := logging.ParseLevel(c.Logging.Level); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if c.Orchestrator.PausePollInterval < 0 {
		return fmt.Errorf("config: pause poll interval must not be negative")
	}

	for i, a := range c.Agents {
		if a.Name == "" {
			return fmt.Errorf("config: agent %d: name must not be empty", i)
		}
		if a.Capability == "" {
			return fmt.Errorf("config: agent %s: capability must not be empty", a.Name)
		}
		switch a.Kind {
		case AgentKindSimulated, AgentKindAnthropic, AgentKindOpenAI:
		default:
			return fmt.Errorf("config: agent %s: unknown kind %q", a.Name, a.Kind)
		}
	}

	return nil
}

// BuildLogger constructs the application logger from the logging section.
func (c *Config) BuildLogger() (*logging.FlowMeshLogger, error) {
	level, err := logging.ParseLevel(c.Logging.Level)
	if err != nil {
		return nil, err
	}
	return logging.NewSlogLogger(level, c.Logging.Format, c.Logging.AddSource), nil
}

// BuildAgents constructs the configured agents. Model-backed agents read
// their API key from the environment variable named in APIKeyEnv; leaving it
// unset defers to the provider SDK's own defaults.
func (c *Config) BuildAgents() ([]agent.Agent, error) {
	agents := make([]agent.Agent, 0, len(c.Agents))

	for _, ac := range c.Agents {
		built, err := buildAgent(ac)
		if err != nil {
			return nil, fmt.Errorf("config: agent %s: %w", ac.Name, err)
		}
		agents = append(agents, built)
	}

	return agents, nil
}

func buildAgent(ac AgentConfig) (agent.Agent, error) {
	capability := workflow.Capability(ac.Capability)

	switch ac.Kind {
	case AgentKindSimulated:
		return agent.NewSimulatedAgent(ac.Name, capability, func(o *agent.SimulatedOptions) {
			if ac.Latency > 0 {
				o.Latency = ac.Latency.Std()
			}
			if ac.MaxConcurrent > 0 {
				o.MaxConcurrent = ac.MaxConcurrent
			}
		}), nil
	case AgentKindAnthropic:
		mdl := flowanthropic.NewModel(func(o *flowanthropic.Options) {
			if ac.Model != "" {
				o.Model = anthropic.Model(ac.Model)
			}
			if ac.APIKeyEnv != "" {
				o.APIKey = os.Getenv(ac.APIKeyEnv)
			}
		})
		return newModelAgent(ac, capability, mdl), nil
	case AgentKindOpenAI:
		mdl := flowopenai.NewModel(func(o *flowopenai.Options) {
			if ac.Model != "" {
				o.Model = ac.Model
			}
			if ac.APIKeyEnv != "" {
				o.APIKey = os.Getenv(ac.APIKeyEnv)
			}
		})
		return newModelAgent(ac, capability, mdl), nil
	default:
		return nil, fmt.Errorf("unknown kind %q", ac.Kind)
	}
}

func newModelAgent(ac AgentConfig, capability workflow.Capability, mdl model.Model) agent.Agent {
	return agent.NewModelAgent(ac.Name, capability, mdl, func(o *agent.ModelAgentOptions) {
		if ac.Instruction != "" {
			o.Instruction = ac.Instruction
		}
		if ac.MaxConcurrent > 0 {
			o.MaxConcurrent = ac.MaxConcurrent
		}
	})
}
