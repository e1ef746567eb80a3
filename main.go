// gposes browses a Gposes gallery from the terminal
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/pkg/browser"
	"github.com/rs/zerolog"

	"gposes/internal/bookmarks"
)

const appName = "gposes"

// Version information - injected at build time via ldflags
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

var (
	// Command line flags
	flagHost        = flag.String("host", "", "Gallery API base URL")
	flagFolder      = flag.String("folder", "", "Start in this folder (a/b/c)")
	flagNsfw        = flag.String("nsfw", "", "Start with the filter set (true or false)")
	flagNavigation  = flag.String("navigation", "", "Navigation events: native, fallback or none")
	flagDownloadDir = flag.String("download-dir", "", "Directory archives are saved to")
	flagOpen        = flag.Bool("open", false, "Open archive links in the browser instead of saving them")
	flagPort        = flag.Int("port", 0, "Control server port (0 = auto-find free port)")
	flagNoServe     = flag.Bool("no-serve", false, "Do not start the control server")
	flagPrint       = flag.Bool("print", false, "Print the start location and exit")
	flagConfig      = flag.String("config", "", "Path to config file")
	flagSaveConfig  = flag.Bool("save-config", false, "Save current settings to config file")
	flagVersion     = flag.Bool("version", false, "Show version")
)

func init() {
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, `%s v%s - Gposes gallery browser

Browses the folders and pictures of a Gposes gallery. Every view is a
location (?folder=a/b&isNsfw=false) kept in a session history, so back,
forward and share links work like in a web browser.

USAGE:
    %s [OPTIONS]

OPTIONS:
    --host <url>          Gallery API base URL
    --folder <a/b/c>      Start in this folder (default: welcome page)
    --nsfw <true|false>   Start with the filter set; shows the SFW/NSFW radio
    --navigation <mode>   native, fallback or none (default: fallback)
    --download-dir <dir>  Where archives are saved (default: ~/Downloads)
    --open                Open archive links in the browser instead
    --port <n>            Control server port (default: 8080, 0 = find free port)
    --no-serve            Do not start the control server
    --print               Print the start location as text and exit
    --config <path>       Path to config file (default: XDG config dir)
    --save-config         Save current settings to config file and exit
    --version             Show version and exit
    --help                Show this help

    Note: Single dash (-port) also works for all options.

CONFIG FILE:
    Settings are loaded from (in order of precedence):
    1. Command line flags
    2. Config file specified with --config
    3. $XDG_CONFIG_HOME/%s/settings.json
    4. ~/.config/%s/settings.json
    5. Built-in defaults

    Example settings.json:
    {
      "host": "https://example.org/_GposesAPI/",
      "safe_bucket": "1.SFW",
      "unsafe_bucket": "2.NSFW",
      "download_dir": "~/Downloads"
    }

EXAMPLES:
    %s                               # Welcome page (or the last visited folder)
    %s --folder Gifts/1.SFW          # Open a folder
    %s --nsfw false                  # Show the SFW/NSFW filter
    %s --print --folder Gifts        # Print a folder and exit
    %s --host https://... --save-config

`, appName, version, appName, appName, appName, appName, appName, appName, appName, appName)
	}
}

func main() {
	flag.Parse()

	if *flagVersion {
		nameStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("#10B981")).Bold(true)
		versionStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("#6B7280"))
		fmt.Printf("%s %s\n", nameStyle.Render(appName), versionStyle.Render(fmt.Sprintf("v%s (%s, %s)", version, commit, date)))
		os.Exit(0)
	}

	cfg := applyFlags(loadConfig())

	if *flagSaveConfig {
		if err := saveConfig(cfg); err != nil {
			fatal(fmt.Sprintf("Failed to save config: %v", err))
		}
		successStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("#10B981"))
		pathStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("#E5E7EB")).Bold(true)
		fmt.Printf("%s %s\n", successStyle.Render("Config saved to"), pathStyle.Render(getConfigPath()))
		os.Exit(0)
	}

	if err := cfg.validate(); err != nil {
		fatal(fmt.Sprintf("Error: %v", err))
	}

	var nsfw *bool
	if *flagNsfw != "" {
		v, err := strconv.ParseBool(*flagNsfw)
		if err != nil {
			fatal(fmt.Sprintf("Error: --nsfw must be true or false, got %q", *flagNsfw))
		}
		nsfw = &v
	}
	start := startLocation(*flagFolder, nsfw)
	explicitStart := isFlagSet("folder") || isFlagSet("nsfw")

	if *flagPrint {
		os.Exit(runPrint(cfg, start))
	}
	os.Exit(runTUI(cfg, start, explicitStart))
}

func fatal(msg string) {
	errorStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("#EF4444")).Bold(true)
	fmt.Fprintln(os.Stderr, errorStyle.Render(msg))
	os.Exit(1)
}

// runPrint renders the start location once and prints it
func runPrint(cfg Config, start string) int {
	log := newConsoleLogger(os.Stderr, zerolog.WarnLevel)
	a, err := newApp(cfg, appOptions{start: start}, log)
	if err != nil {
		log.Error().Err(err).Msg("startup failed")
		return 1
	}
	a.ctrl.Start(context.Background())
	a.ctrl.Wait()
	a.ctrl.Stop()
	fmt.Print(a.region.Snapshot().Text())
	return 0
}

func runTUI(cfg Config, start string, explicitStart bool) int {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Create log channel for TUI
	logChan := make(chan logMsg, 100)
	log := newTUILogger(logChan)

	// keep the browser launcher from writing over the screen
	browser.Stdout = io.Discard
	browser.Stderr = io.Discard

	var store *bookmarks.Store
	if s, err := openStore(cfg); err != nil {
		log.Warn().Err(err).Msg("bookmarks unavailable")
	} else {
		store = s
		defer store.Close()
	}

	if !explicitStart && cfg.RestoreLast {
		if last := lastLocation(ctx, store); last != "" {
			start = last
		}
	}

	redraw := make(chan struct{}, 1)
	onChange := func() {
		select {
		case redraw <- struct{}{}:
		default:
		}
	}

	a, err := newApp(cfg, appOptions{start: start, onChange: onChange, store: store}, log)
	if err != nil {
		fmt.Fprintln(os.Stderr, lipgloss.NewStyle().Foreground(lipgloss.Color("#EF4444")).Bold(true).Render(fmt.Sprintf("Error: %v", err)))
		return 1
	}

	if cfg.Serve {
		port, listener, err := findAvailablePort(cfg.Port, log)
		if err != nil {
			log.Warn().Err(err).Msg("control server disabled")
		} else {
			a.baseURL = fmt.Sprintf("http://localhost:%d", port)
			go a.serve(listener)
			log.Info().Str("url", a.baseURL).Msg("control server listening")
		}
	}

	go watchDownloads(ctx, expandHome(cfg.DownloadDir), log, nil)

	a.ctrl.Start(ctx)
	defer a.ctrl.Stop()

	p := tea.NewProgram(
		initialModel(ctx, a, logChan, redraw),
		tea.WithAltScreen(),
	)
	if _, err := p.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "Note: no TUI available (%v); use --print for non-interactive output\n", err)
		return 1
	}
	return 0
}
