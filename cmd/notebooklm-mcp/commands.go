package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/roelfdiedericks/notebooklm-mcp/internal/browser"
	"github.com/roelfdiedericks/notebooklm-mcp/internal/config"
	. "github.com/roelfdiedericks/notebooklm-mcp/internal/logging"
	"github.com/roelfdiedericks/notebooklm-mcp/internal/mcp"
	"github.com/roelfdiedericks/notebooklm-mcp/internal/notebook"
	"github.com/roelfdiedericks/notebooklm-mcp/internal/paths"
)

// newService builds the browser manager and the notebook service from cfg.
func (a *app) newService() (*notebook.Service, error) {
	bcfg := browserConfig(a.cfg)
	mgr, err := browser.NewManager(bcfg)
	if err != nil {
		return nil, err
	}
	return notebook.NewService(mgr, notebook.ServiceConfig{
		Options:  notebookOptions(a.cfg),
		Headless: bcfg.Headless,
		Persist:  a.persistNotebook,
	}), nil
}

// persistNotebook writes a new default notebook id to the config file,
// re-reading it first so edits made since startup are kept. Environment
// overrides are not part of the file and are not written back.
func (a *app) persistNotebook(id string) error {
	cfg, path, err := config.LoadFile(a.cfgPath)
	if err != nil {
		return err
	}
	cfg.DefaultNotebookID = id
	path, err = config.Save(path, cfg)
	if err != nil {
		return err
	}
	a.cfgPath = path
	return nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// ServeCmd runs the MCP server.
type ServeCmd struct {
	Transport string `help:"Transport: stdio, http or sse (default from config)."`
	Host      string `help:"Listen host for http/sse."`
	Port      int    `help:"Listen port for http/sse."`
	NoWatch   bool   `help:"Do not reload the config file when it changes."`
}

func (c *ServeCmd) Run(a *app, ctx context.Context) error {
	opts := mcp.ServeOptions{
		Transport: a.cfg.Server.Transport,
		Host:      a.cfg.Server.Host,
		Port:      a.cfg.Server.Port,
	}
	if c.Transport != "" {
		opts.Transport = c.Transport
	}
	if c.Host != "" {
		opts.Host = c.Host
	}
	if c.Port != 0 {
		opts.Port = c.Port
	}

	svc, err := a.newService()
	if err != nil {
		return err
	}
	defer func() {
		if err := svc.Close(); err != nil {
			L_warn("serve: browser close failed", "error", err)
		}
	}()

	if a.cfgPath != "" && !c.NoWatch {
		w, err := config.NewWatcher(a.cfgPath, func(cfg *config.Config) {
			svc.Reconfigure(notebookOptions(cfg))
			SetLevel(ParseLevel(cfg.Log.Level))
		})
		if err != nil {
			L_warn("serve: config watch disabled", "error", err)
		} else if err := w.Start(ctx); err != nil {
			L_warn("serve: config watch disabled", "error", err)
		} else {
			defer w.Stop()
		}
	}

	L_info("notebooklm-mcp starting", "version", version, "transport", opts.Transport, "notebook", svc.DefaultNotebook())
	return mcp.Serve(ctx, mcp.NewServer(svc, version), opts)
}

// HealthcheckCmd starts the browser once and prints the health report.
type HealthcheckCmd struct {
	Auth bool `help:"Also verify the Google sign-in."`
}

func (c *HealthcheckCmd) Run(a *app, ctx context.Context) error {
	svc, err := a.newService()
	if err != nil {
		return err
	}
	defer svc.Close()

	h := svc.Health(ctx, c.Auth)
	if err := printJSON(h); err != nil {
		return err
	}
	if h.Status == "error" {
		return errors.New(h.Message)
	}
	return nil
}

// LoginCmd opens a visible browser on the persistent profile and waits for
// the user to finish signing in.
type LoginCmd struct {
	Notebook string        `help:"Notebook to open (default from config)."`
	Timeout  time.Duration `default:"10m" help:"How long to wait for the sign-in."`
}

func (c *LoginCmd) Run(a *app, ctx context.Context) error {
	if !a.cfg.Auth.UsePersistentSession && a.cfg.Browser.ChromeCDP == "" {
		return errors.New("login needs auth.use_persistent_session, otherwise the sign-in is lost when the browser closes")
	}

	mgr, err := browser.NewManager(browserConfig(a.cfg))
	if err != nil {
		return err
	}
	opts := notebookOptions(a.cfg)
	target := opts.BaseURL
	id := c.Notebook
	if id == "" {
		id = opts.NotebookID
	}
	if id != "" {
		target = opts.NotebookURL(id)
	}

	drv, err := mgr.LaunchHeaded(ctx, target)
	if err != nil {
		return err
	}
	defer drv.Close()

	fmt.Fprintf(os.Stderr, "Sign in to Google in the browser window (profile: %s).\n", mgr.ProfileDir())

	ctx, cancel := context.WithTimeout(ctx, c.Timeout)
	defer cancel()
	return waitForLogin(ctx, drv, opts, time.Second)
}

// waitForLogin polls the page URL until it is back on the base URL and no
// longer matches a login pattern.
func waitForLogin(ctx context.Context, drv browser.Driver, opts notebook.Options, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	sawLogin := false
	for {
		url, err := drv.CurrentURL(ctx)
		if err == nil {
			login := notebook.LoginRequired(url, opts.LoginURLPatterns)
			if login && !sawLogin {
				sawLogin = true
				L_info("login: waiting for sign-in", "url", url)
			}
			if !login && strings.HasPrefix(url, opts.BaseURL) {
				L_info("login: signed in", "url", url)
				fmt.Fprintln(os.Stderr, "Signed in. The session is saved in the browser profile.")
				return nil
			}
		} else {
			L_debug("login: cannot read url", "error", err)
		}

		select {
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return errors.New("timed out waiting for sign-in")
			}
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// ProfileCmd groups the profile subcommands.
type ProfileCmd struct {
	List  ProfileListCmd  `cmd:"" help:"List browser profiles."`
	Clear ProfileClearCmd `cmd:"" help:"Delete a profile's data (signs it out)."`
}

type ProfileListCmd struct{}

func (c *ProfileListCmd) Run(a *app) error {
	mgr, err := browser.NewManager(browserConfig(a.cfg))
	if err != nil {
		return err
	}
	profiles, err := mgr.Profiles().ListProfiles()
	if err != nil {
		return err
	}
	if len(profiles) == 0 {
		fmt.Println("no profiles")
		return nil
	}

	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tSIZE\tLAST USED\tIN USE")
	for _, p := range profiles {
		last := "-"
		if !p.LastUsed.IsZero() {
			last = p.LastUsed.Format("2006-01-02 15:04")
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%v\n", p.Name, browser.FormatSize(p.Size), last, p.InUse)
	}
	return tw.Flush()
}

type ProfileClearCmd struct {
	Name string `arg:"" optional:"" default:"default" help:"Profile name."`
}

func (c *ProfileClearCmd) Run(a *app) error {
	mgr, err := browser.NewManager(browserConfig(a.cfg))
	if err != nil {
		return err
	}
	if err := mgr.Profiles().ClearProfile(c.Name); err != nil {
		return err
	}
	fmt.Printf("cleared profile %s\n", c.Name)
	return nil
}

// ConfigCmd groups the config subcommands.
type ConfigCmd struct {
	Show ConfigShowCmd `cmd:"" help:"Print the effective configuration."`
	Init ConfigInitCmd `cmd:"" help:"Write a config file with the defaults."`
}

type ConfigShowCmd struct{}

func (c *ConfigShowCmd) Run(a *app) error {
	if a.cfgPath != "" {
		fmt.Fprintf(os.Stderr, "# %s\n", a.cfgPath)
	}
	return printJSON(a.cfg)
}

type ConfigInitCmd struct {
	Path  string `arg:"" optional:"" type:"path" help:"Where to write (default: ~/.notebooklm-mcp/config.json)."`
	Force bool   `help:"Overwrite an existing file."`
}

func (c *ConfigInitCmd) Run(a *app) error {
	path := c.Path
	if path == "" {
		p, err := paths.DefaultConfigPath()
		if err != nil {
			return err
		}
		path = p
	}
	if _, err := os.Stat(path); err == nil && !c.Force {
		return fmt.Errorf("%s exists, use --force to overwrite", path)
	}
	written, err := config.Save(path, config.Default())
	if err != nil {
		return err
	}
	fmt.Println(written)
	return nil
}

type VersionCmd struct{}

func (c *VersionCmd) Run() error {
	fmt.Printf("notebooklm-mcp %s\n", version)
	return nil
}
