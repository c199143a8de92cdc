package browser

import (
	"errors"
	"fmt"
	"os/exec"
)

// ErrBrowserNotFound reports that no usable browser executable exists.
var ErrBrowserNotFound = errors.New("browser executable not found")

// candidate browsers tried in order when no explicit path is configured.
var defaultBrowsers = []string{"xdg-open", "google-chrome", "chromium", "firefox", "open"}

// Launcher spawns a real browser process for URLs the shell does not
// simulate. The spawned process is not waited on.
type Launcher struct {
	path string
}

// NewLauncher resolves the browser executable up front so a missing binary
// fails at construction rather than on first use. An empty path picks the
// first available default browser.
func NewLauncher(path string) (*Launcher, error) {
	if path != "" {
		resolved, err := exec.LookPath(path)
		if err != nil {
			return nil, fmt.Errorf("%w: %s", ErrBrowserNotFound, path)
		}
		return &Launcher{path: resolved}, nil
	}
	for _, candidate := range defaultBrowsers {
		if resolved, err := exec.LookPath(candidate); err == nil {
			return &Launcher{path: resolved}, nil
		}
	}
	return nil, ErrBrowserNotFound
}

// Path returns the resolved executable path.
func (l *Launcher) Path() string {
	return l.path
}

// Open launches the browser on the given URL and detaches.
func (l *Launcher) Open(rawURL string) error {
	cmd := exec.Command(l.path, rawURL)
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("launch browser: %w", err)
	}
	go func() { _ = cmd.Wait() }()
	return nil
}
