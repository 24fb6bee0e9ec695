package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/hupe1980/flowmesh/agent"
	"github.com/hupe1980/flowmesh/workflow"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestDuration_YAML(t *testing.T) {
	var d Duration
	require.NoError(t, yaml.Unmarshal([]byte(`"2m30s"`), &d))
	assert.Equal(t, 2*time.Minute+30*time.Second, d.Std())

	out, err := yaml.Marshal(Duration(5 * time.Second))
	require.NoError(t, err)
	assert.Equal(t, "5s\n", string(out))

	assert.Error(t, yaml.Unmarshal([]byte(`"not-a-duration"`), &d))
}

func TestDuration_JSON(t *testing.T) {
	var d Duration
	require.NoError(t, json.Unmarshal([]byte(`"1h"`), &d))
	assert.Equal(t, time.Hour, d.Std())

	out, err := json.Marshal(Duration(250 * time.Millisecond))
	require.NoError(t, err)
	assert.Equal(t, `"250ms"`, string(out))

	assert.Error(t, json.Unmarshal([]byte(`"bogus"`), &d))
}

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.True(t, cfg.Metrics.Enabled)
	assert.Equal(t, 100*time.Millisecond, cfg.Orchestrator.PausePollInterval.Std())
	require.Len(t, cfg.Agents, 6)
	for _, a := range cfg.Agents {
		assert.Equal(t, AgentKindSimulated, a.Kind)
	}
	assert.NoError(t, cfg.Validate())
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	path := writeFile(t, "config.yaml", `
server:
  addr: ":9090"
logging:
  level: debug
  format: text
orchestrator:
  pause_poll_interval: 50ms
agents:
  - name: sim-testing
    capability: testing
    kind: simulated
    latency: 10ms
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.Server.Addr)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "text", cfg.Logging.Format)
	assert.Equal(t, 50*time.Millisecond, cfg.Orchestrator.PausePollInterval.Std())
	require.Len(t, cfg.Agents, 1)
	assert.Equal(t, "sim-testing", cfg.Agents[0].Name)
	assert.Equal(t, 10*time.Millisecond, cfg.Agents[0].Latency.Std())
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("FLOWMESH_ADDR", ":7070")
	t.Setenv("FLOWMESH_LOG_LEVEL", "warn")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, ":7070", cfg.Server.Addr)
	assert.Equal(t, "warn", cfg.Logging.Level)
}

func TestLoad_Errors(t *testing.T) {
	t.Run("MissingFile", func(t *testing.T) {
		_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
		assert.ErrorContains(t, err, "read config")
	})

	t.Run("InvalidYAML", func(t *testing.T) {
		_, err := Load(writeFile(t, "bad.yaml", "server: [not a mapping"))
		assert.ErrorContains(t, err, "parse config")
	})

	t.Run("UnknownLogLevel", func(t *testing.T) {
		_, err := Load(writeFile(t, "config.yaml", "logging:\n  level: loud\n"))
		assert.ErrorContains(t, err, "unknown log level")
	})

	t.Run("UnknownAgentKind", func(t *testing.T) {
		_, err := Load(writeFile(t, "config.yaml", `
agents:
  - name: a
    capability: testing
    kind: quantum
`))
		assert.ErrorContains(t, err, `unknown kind "quantum"`)
	})
}

func TestBuildLogger(t *testing.T) {
	cfg := Default()
	logger, err := cfg.BuildLogger()
	require.NoError(t, err)
	assert.NotNil(t, logger)
}

func TestBuildAgents(t *testing.T) {
	// Both model-backed kinds read their key from the named env var.
	t.Setenv("TEST_ANTHROPIC_KEY", "sk-ant-test")
	t.Setenv("TEST_OPENAI_KEY", "sk-oai-test")

	cfg := &Config{
		Server:  ServerConfig{Addr: ":8080"},
		Logging: LoggingConfig{Level: "info"},
		Agents: []AgentConfig{
			{Name: "sim", Capability: "testing", Kind: AgentKindSimulated, MaxConcurrent: 2},
			{Name: "claude", Capability: "code_generation", Kind: AgentKindAnthropic, Model: "claude-sonnet-4-20250514", APIKeyEnv: "TEST_ANTHROPIC_KEY"},
			{Name: "gpt", Capability: "template_selection", Kind: AgentKindOpenAI, Model: "gpt-4o", APIKeyEnv: "TEST_OPENAI_KEY"},
		},
	}
	require.NoError(t, cfg.Validate())

	agents, err := cfg.BuildAgents()
	require.NoError(t, err)
	require.Len(t, agents, 3)

	assert.IsType(t, &agent.SimulatedAgent{}, agents[0])
	assert.Equal(t, workflow.Capability("testing"), agents[0].Capability())
	assert.IsType(t, &agent.ModelAgent{}, agents[1])
	assert.IsType(t, &agent.ModelAgent{}, agents[2])
}
