package main

import (
	"time"

	"github.com/roelfdiedericks/notebooklm-mcp/internal/browser"
	"github.com/roelfdiedericks/notebooklm-mcp/internal/config"
	"github.com/roelfdiedericks/notebooklm-mcp/internal/notebook"
)

func browserConfig(cfg *config.Config) browser.BrowserConfig {
	bc := browser.DefaultBrowserConfig()
	bc.Dir = cfg.Browser.Dir
	bc.Bin = cfg.Browser.Bin
	bc.AutoDownload = cfg.Browser.AutoDownload
	bc.Headless = cfg.Headless
	bc.NoSandbox = cfg.Browser.NoSandbox
	bc.Stealth = cfg.Browser.Stealth
	bc.ChromeCDP = cfg.Browser.ChromeCDP
	bc.PersistentProfile = cfg.Auth.UsePersistentSession
	bc.ProfileDir = cfg.Auth.ProfileDir
	if cfg.Browser.Device != "" {
		bc.Device = cfg.Browser.Device
	}
	return bc
}

// notebookOptions maps the config file onto session options. Empty
// selector and sanitizer fields keep the built-in defaults.
func notebookOptions(cfg *config.Config) notebook.Options {
	opts := notebook.DefaultOptions()
	opts.BaseURL = cfg.BaseURLTrimmed()
	opts.NotebookID = cfg.DefaultNotebookID
	opts.PageTimeout = cfg.PageTimeout()
	opts.AuthTimeout = cfg.AuthCheckTimeout()
	if len(cfg.Auth.LoginURLPatterns) > 0 {
		opts.LoginURLPatterns = cfg.Auth.LoginURLPatterns
	}

	opts.Stream = notebook.StreamOptions{
		RequiredStable: cfg.ResponseStabilityChecks,
		MaxWait:        cfg.MaxWait(),
		Interval:       cfg.PollInterval(),
	}

	sel := cfg.Selectors
	opts.Selectors = notebook.Selectors{
		ChatInput:    sel.ChatInput,
		Response:     sel.Response,
		Generating:   sel.Generating,
		FallbackText: sel.FallbackText,
		FallbackSkip: sel.FallbackSkip,
		InputTimeout: time.Duration(sel.InputTimeout) * time.Millisecond,
	}

	san := cfg.Sanitizer
	opts.Rules = notebook.Rules{
		Artifacts:             san.Artifacts,
		AnswerMarkers:         san.AnswerMarkers,
		ArtifactLineMaxLength: san.ArtifactLineMaxLength,
		MinAnswerLength:       san.MinAnswerLength,
		MinParagraphLength:    san.MinParagraphLength,
		EchoLineMaxLength:     san.EchoLineMaxLength,
	}
	return opts
}
