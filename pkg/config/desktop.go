package config

import "time"

// DesktopConfig holds configuration for the desktop client shell.
type DesktopConfig struct {
	ServerURL    string
	HomeURL      string
	BrowserPath  string
	ProbeTimeout time.Duration
}

// LoadDesktopConfig constructs a DesktopConfig from environment variables.
func LoadDesktopConfig() DesktopConfig {
	return DesktopConfig{
		ServerURL:    GetString("LOCALPOST_SERVER_URL", "http://localhost:5000"),
		HomeURL:      GetString("LOCALPOST_HOME_URL", "https://discord.com"),
		BrowserPath:  GetString("LOCALPOST_BROWSER", ""),
		ProbeTimeout: GetSeconds("LOCALPOST_PROBE_TIMEOUT_SECONDS", 5*time.Second),
	}
}
