// Command flowmesh runs the workflow orchestration service and related
// tooling.
//
// Usage:
//
//	flowmesh serve --config config.yaml
//	flowmesh run workflow.yaml
//	flowmesh validate --config config.yaml workflow.yaml
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os/signal"
	"runtime/debug"
	"syscall"

	"github.com/alecthomas/kong"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/hupe1980/flowmesh/config"
	"github.com/hupe1980/flowmesh/metrics"
	"github.com/hupe1980/flowmesh/orchestrator"
	"github.com/hupe1980/flowmesh/server"
)

// CLI defines the command-line interface.
type CLI struct {
	Version  VersionCmd  `cmd:"" help:"Show version information."`
	Serve    ServeCmd    `cmd:"" help:"Start the HTTP API server."`
	Run      RunCmd      `cmd:"" help:"Execute a workflow definition file and print the result."`
	Validate ValidateCmd `cmd:"" help:"Validate configuration and workflow definition files."`

	Config    string `short:"c" help:"Path to config file." type:"path"`
	LogLevel  string `help:"Log level (debug, info, warn, error)."`
	LogFormat string `help:"Log format (json or text)."`
}

func (c *CLI) loadConfig() (*config.Config, error) {
	cfg, err := config.Load(c.Config)
	if err != nil {
		return nil, err
	}
	if c.LogLevel != "" {
		cfg.Logging.Level = c.LogLevel
	}
	if c.LogFormat != "" {
		cfg.Logging.Format = c.LogFormat
	}
	return cfg, cfg.Validate()
}

// VersionCmd shows version information.
type VersionCmd struct{}

func (c *VersionCmd) Run() error {
	version := "dev"
	if info, ok := debug.ReadBuildInfo(); ok {
		if info.Main.Version != "(devel)" && info.Main.Version != "" {
			version = info.Main.Version
		}
	}
	fmt.Printf("flowmesh version %s\n", version)
	return nil
}

// ServeCmd starts the HTTP API server.
type ServeCmd struct {
	Addr string `help:"Listen address, overrides the config file." placeholder:"HOST:PORT"`
}

func (c *ServeCmd) Run(cli *CLI) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, err := cli.loadConfig()
	if err != nil {
		return err
	}
	if c.Addr != "" {
		cfg.Server.Addr = c.Addr
	}

	logger, err := cfg.BuildLogger()
	if err != nil {
		return err
	}

	orch := orchestrator.New(func(o *orchestrator.Options) {
		o.Logger = logger.WithComponent("orchestrator")
		o.PausePollInterval = cfg.Orchestrator.PausePollInterval.Std()
	})

	agents, err := cfg.BuildAgents()
	if err != nil {
		return err
	}
	for _, a := range agents {
		orch.RegisterAgent(a)
		logger.Info("Agent registered", "name", a.Name(), "capability", string(a.Capability()))
	}

	var gatherer prometheus.Gatherer
	if cfg.Metrics.Enabled {
		registry := prometheus.NewRegistry()
		metrics.NewCollector(registry).Bind(orch.Bus())
		gatherer = registry
	}

	srv := server.New(orch, func(o *server.Options) {
		o.Addr = cfg.Server.Addr
		o.Logger = logger.WithComponent("server")
		o.Gatherer = gatherer
	})

	return srv.Serve(ctx)
}

// RunCmd executes one workflow definition to completion.
type RunCmd struct {
	Workflow string `arg:"" help:"Path to a workflow definition (YAML or JSON)." type:"path"`
}

func (c *RunCmd) Run(cli *CLI) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, err := cli.loadConfig()
	if err != nil {
		return err
	}

	logger, err := cfg.BuildLogger()
	if err != nil {
		return err
	}

	def, err := config.LoadDefinition(c.Workflow)
	if err != nil {
		return err
	}
	wf, err := def.Build()
	if err != nil {
		return err
	}

	orch := orchestrator.New(func(o *orchestrator.Options) {
		o.Logger = logger.WithComponent("orchestrator")
		o.PausePollInterval = cfg.Orchestrator.PausePollInterval.Std()
	})

	agents, err := cfg.BuildAgents()
	if err != nil {
		return err
	}
	for _, a := range agents {
		orch.RegisterAgent(a)
	}

	runErr := orch.Execute(ctx, wf)

	status, err := orch.Status(wf.ID)
	if err != nil {
		return err
	}
	out, err := json.MarshalIndent(status, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))

	return runErr
}

// ValidateCmd checks files without executing anything.
type ValidateCmd struct {
	Workflow string `arg:"" optional:"" help:"Path to a workflow definition to validate." type:"path"`
}

func (c *ValidateCmd) Run(cli *CLI) error {
	if _, err := cli.loadConfig(); err != nil {
		return err
	}
	fmt.Println("config: ok")

	if c.Workflow != "" {
		def, err := config.LoadDefinition(c.Workflow)
		if err != nil {
			return err
		}
		if _, err := def.Build(); err != nil {
			return err
		}
		fmt.Printf("workflow %s: ok\n", c.Workflow)
	}

	return nil
}

func main() {
	_ = godotenv.Load()

	cli := CLI{}
	ctx := kong.Parse(&cli,
		kong.Name("flowmesh"),
		kong.Description("FlowMesh - multi-stage workflow orchestration"),
		kong.UsageOnError(),
	)

	err := ctx.Run(&cli)
	ctx.FatalIfErrorf(err)
}
