// notebooklm-mcp serves a NotebookLM chat, driven through a local Chromium,
// as MCP tools.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/alecthomas/kong"

	"github.com/roelfdiedericks/notebooklm-mcp/internal/config"
	. "github.com/roelfdiedericks/notebooklm-mcp/internal/logging"
)

var version = "0.1.0"

// CLI is the command line.
type CLI struct {
	ConfigFile string   `name:"config" short:"c" type:"path" help:"Config file (default: ./notebooklm-config.json, then ~/.notebooklm-mcp/config.json)."`
	EnvFile    []string `name:"env-file" default:".env" help:"Env files to load before reading the config."`
	Debug      bool     `help:"Debug logging."`

	Serve       ServeCmd       `cmd:"" default:"withargs" help:"Run the MCP server (default)."`
	Healthcheck HealthcheckCmd `cmd:"" help:"Start the browser once and report its state."`
	Login       LoginCmd       `cmd:"" help:"Open a visible browser to sign in to Google."`
	Profile     ProfileCmd     `cmd:"" help:"Manage browser profiles."`
	Config      ConfigCmd      `cmd:"" help:"Show or create the config file."`
	Version     VersionCmd     `cmd:"" help:"Print the version."`
}

// app is handed to every command's Run.
type app struct {
	cfg     *config.Config
	cfgPath string
	debug   bool
}

func main() {
	var cli CLI
	kctx := kong.Parse(&cli,
		kong.Name("notebooklm-mcp"),
		kong.Description("NotebookLM chat over MCP."),
		kong.UsageOnError(),
	)

	a, err := setup(&cli)
	if err != nil {
		L_error("startup failed", "error", err)
		os.Exit(1)
	}
	defer Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	kctx.BindTo(ctx, (*context.Context)(nil))
	err = kctx.Run(a)
	stop()
	if err != nil {
		L_error("command failed", "command", kctx.Command(), "error", err)
		Close()
		os.Exit(1)
	}
}

// setup loads env files and the config, then reconfigures logging from it.
// Logging goes to stderr until the config is known.
func setup(cli *CLI) (*app, error) {
	level := LevelInfo
	if cli.Debug {
		level = LevelDebug
	}
	Init(&Config{Level: level, TimeFormat: "15:04:05"})

	config.LoadDotEnv(cli.EnvFile...)

	cfg, path, err := config.Load(cli.ConfigFile)
	if err != nil {
		return nil, err
	}

	logCfg := DefaultConfig()
	logCfg.Level = ParseLevel(cfg.Log.Level)
	logCfg.File = cfg.Log.File
	if cli.Debug {
		logCfg.Level = LevelDebug
		logCfg.ShowCaller = true
	}
	Init(logCfg)

	if path != "" {
		L_debug("config: using file", "path", path)
	}
	L_object("config", cfg)
	return &app{cfg: cfg, cfgPath: path, debug: cli.Debug}, nil
}
