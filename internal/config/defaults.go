package config

import (
	"os"
	"path/filepath"
	"runtime"
)

const appName = "meetingd"

// PlatformDataDir returns the platform-specific data directory.
//
// Platform paths:
//   - macOS:   ~/Library/Application Support/meetingd/
//   - Linux:   ~/.local/share/meetingd/
//   - Windows: %APPDATA%\meetingd\
//
// Falls back to ~/.meetingd elsewhere.
func PlatformDataDir() string {
	switch runtime.GOOS {
	case "darwin":
		return filepath.Join(homeDir(), "Library", "Application Support", appName)
	case "linux":
		return xdgDir("XDG_DATA_HOME", ".local", "share")
	case "windows":
		return windowsDir("APPDATA", "Roaming")
	default:
		return filepath.Join(homeDir(), "."+appName)
	}
}

// PlatformConfigDir returns the platform-specific config directory.
// macOS and Windows share it with the data directory.
func PlatformConfigDir() string {
	switch runtime.GOOS {
	case "linux":
		return xdgDir("XDG_CONFIG_HOME", ".config")
	default:
		return PlatformDataDir()
	}
}

// PlatformLogDir returns the platform-specific log directory.
func PlatformLogDir() string {
	switch runtime.GOOS {
	case "darwin":
		return filepath.Join(homeDir(), "Library", "Logs", appName)
	case "windows":
		return filepath.Join(windowsDir("LOCALAPPDATA", "Local"), "logs")
	default:
		return filepath.Join(PlatformDataDir(), "logs")
	}
}

func homeDir() string {
	if home := os.Getenv("HOME"); home != "" {
		return home
	}
	home, _ := os.UserHomeDir()
	return home
}

func xdgDir(env string, fallback ...string) string {
	if dir := os.Getenv(env); dir != "" {
		return filepath.Join(dir, appName)
	}
	parts := append([]string{homeDir()}, fallback...)
	return filepath.Join(append(parts, appName)...)
}

func windowsDir(env, fallback string) string {
	if dir := os.Getenv(env); dir != "" {
		return filepath.Join(dir, appName)
	}
	return filepath.Join(homeDir(), "AppData", fallback, appName)
}

// DefaultPaths groups the default locations for the current platform.
type DefaultPaths struct {
	DataDir   string
	ConfigDir string
	LogDir    string

	ConfigFile   string
	DatabaseFile string
	LogFile      string
}

// GetDefaultPaths returns all default paths for the current platform.
func GetDefaultPaths() *DefaultPaths {
	dataDir := PlatformDataDir()
	configDir := PlatformConfigDir()
	logDir := PlatformLogDir()
	return &DefaultPaths{
		DataDir:      dataDir,
		ConfigDir:    configDir,
		LogDir:       logDir,
		ConfigFile:   filepath.Join(configDir, "config.toml"),
		DatabaseFile: filepath.Join(dataDir, "meetingd.db"),
		LogFile:      filepath.Join(logDir, "meetingd.log"),
	}
}

// SupportedConfigFormats lists the file extensions Load understands.
func SupportedConfigFormats() []string {
	return []string{".toml", ".yaml", ".yml", ".json", ".jsonc"}
}

// FindConfigFile returns the first existing config file in dir, trying each
// supported extension in order. It returns "" when none exists.
func FindConfigFile(dir string) string {
	for _, ext := range SupportedConfigFormats() {
		path := filepath.Join(dir, "config"+ext)
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// ResolvePath picks the configuration file: explicit if set, then
// MEETINGD_CONFIG, then the first file found in the platform config
// directory, then the default TOML path.
func ResolvePath(explicit string) string {
	if explicit != "" {
		return explicit
	}
	if env := os.Getenv("MEETINGD_CONFIG"); env != "" {
		return env
	}
	if found := FindConfigFile(PlatformConfigDir()); found != "" {
		return found
	}
	return GetDefaultPaths().ConfigFile
}
