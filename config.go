package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Config holds application settings
type Config struct {
	Host              string `json:"host"`
	APIPath           string `json:"api_path"`
	Extension         string `json:"extension"`
	SafeBucket        string `json:"safe_bucket"`
	UnsafeBucket      string `json:"unsafe_bucket"`
	FolderIcon        string `json:"folder_icon"`
	RecentLimit       int    `json:"recent_limit"`
	RecentFoldersOnly bool   `json:"recent_folders_only"`
	Navigation        string `json:"navigation"` // native, fallback or none
	DownloadDir       string `json:"download_dir"`
	OpenInBrowser     bool   `json:"open_in_browser"`
	Port              int    `json:"port"`
	Serve             bool   `json:"serve"`
	DataDir           string `json:"data_dir"`
	RestoreLast       bool   `json:"restore_last"`
}

// DefaultConfig returns sensible defaults
func DefaultConfig() Config {
	return Config{
		Host:              "https://naslku.synology.me/_GposesAPI/",
		APIPath:           "api/",
		Extension:         ".php",
		SafeBucket:        "1.SFW",
		UnsafeBucket:      "2.NSFW",
		FolderIcon:        "folder",
		RecentLimit:       24,
		RecentFoldersOnly: true,
		Navigation:        navFallback,
		DownloadDir:       "~/Downloads",
		Port:              0,
		Serve:             true,
		DataDir:           getDataDir(),
		RestoreLast:       true,
	}
}

const (
	navNative   = "native"
	navFallback = "fallback"
	navNone     = "none"
)

func (c Config) validate() error {
	switch c.Navigation {
	case navNative, navFallback, navNone:
	default:
		return fmt.Errorf("navigation must be %s, %s or %s, got %q", navNative, navFallback, navNone, c.Navigation)
	}
	if c.SafeBucket == "" || c.UnsafeBucket == "" || c.SafeBucket == c.UnsafeBucket {
		return fmt.Errorf("bucket names must be distinct and non-empty")
	}
	if strings.Contains(c.SafeBucket, "/") || strings.Contains(c.UnsafeBucket, "/") {
		return fmt.Errorf("bucket names cannot contain /")
	}
	return nil
}

// isFlagSet checks if a flag was explicitly set on command line
func isFlagSet(name string) bool {
	found := false
	flag.Visit(func(f *flag.Flag) {
		if f.Name == name {
			found = true
		}
	})
	return found
}

// getConfigDir returns XDG compliant config directory
func getConfigDir() string {
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, appName)
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", appName)
}

// getDataDir returns XDG compliant data directory
func getDataDir() string {
	if xdgData := os.Getenv("XDG_DATA_HOME"); xdgData != "" {
		return filepath.Join(xdgData, appName)
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".local", "share", appName)
}

// getConfigPath returns full path to config file
func getConfigPath() string {
	if *flagConfig != "" {
		return *flagConfig
	}
	dir := getConfigDir()
	if dir == "" {
		return ""
	}
	return filepath.Join(dir, "settings.json")
}

// loadConfig loads settings from XDG config location
func loadConfig() Config {
	cfg := DefaultConfig()

	configPath := getConfigPath()
	if configPath == "" {
		return cfg
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		// Config file doesn't exist yet, use defaults
		return cfg
	}

	if err := json.Unmarshal(data, &cfg); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: could not parse config file: %v\n", err)
		return DefaultConfig()
	}

	return cfg
}

// saveConfig saves settings to XDG config location
func saveConfig(cfg Config) error {
	configPath := getConfigPath()
	if configPath == "" {
		return fmt.Errorf("no config location")
	}
	configDir := filepath.Dir(configPath)

	if err := os.MkdirAll(configDir, 0755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}

	return nil
}

// applyFlags overrides cfg with every flag given on the command line
func applyFlags(cfg Config) Config {
	if isFlagSet("host") {
		cfg.Host = *flagHost
	}
	if isFlagSet("navigation") {
		cfg.Navigation = *flagNavigation
	}
	if isFlagSet("download-dir") {
		cfg.DownloadDir = *flagDownloadDir
	}
	if isFlagSet("open") {
		cfg.OpenInBrowser = *flagOpen
	}
	if isFlagSet("port") {
		cfg.Port = *flagPort
	}
	if *flagNoServe {
		cfg.Serve = false
	}
	return cfg
}

// expandHome expands a leading ~ to the home directory
func expandHome(path string) string {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~"))
}
