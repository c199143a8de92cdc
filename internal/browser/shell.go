package browser

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"
)

// Shell is a line-oriented front end over the navigator, page renderer,
// browser launcher and health probe.
type Shell struct {
	nav      *Navigator
	renderer *Renderer
	launcher *Launcher
	probe    *Probe
	homeURL  string

	in  *bufio.Scanner
	out io.Writer
}

// NewShell wires the shell components. launcher may be nil when no browser
// executable is available; external hotspots then report an error instead.
func NewShell(nav *Navigator, renderer *Renderer, launcher *Launcher, probe *Probe, homeURL string, in io.Reader, out io.Writer) *Shell {
	return &Shell{
		nav:      nav,
		renderer: renderer,
		launcher: launcher,
		probe:    probe,
		homeURL:  homeURL,
		in:       bufio.NewScanner(in),
		out:      out,
	}
}

// Run reads commands until EOF or quit.
func (s *Shell) Run(ctx context.Context) error {
	s.printPage(s.renderer.Render(s.nav.Current()))
	for {
		fmt.Fprintf(s.out, "\n[%s]> ", s.nav.Current())
		if !s.in.Scan() {
			return s.in.Err()
		}
		line := strings.TrimSpace(s.in.Text())
		if line == "" {
			continue
		}
		cmd, arg, _ := strings.Cut(line, " ")
		arg = strings.TrimSpace(arg)

		switch cmd {
		case "go":
			if arg == "" {
				fmt.Fprintln(s.out, "usage: go <url>")
				continue
			}
			s.nav.Navigate(arg)
			s.printPage(s.renderer.Render(s.nav.Current()))
		case "back":
			s.nav.Back()
			s.printPage(s.renderer.Render(s.nav.Current()))
		case "forward":
			s.nav.Forward()
			s.printPage(s.renderer.Render(s.nav.Current()))
		case "refresh":
			s.printPage(s.renderer.Render(s.nav.Refresh()))
		case "home":
			s.nav.Navigate(s.homeURL)
			s.printPage(s.renderer.Render(s.nav.Current()))
		case "links":
			s.printLinks(s.renderer.Render(s.nav.Current()))
		case "click":
			s.click(arg)
		case "open":
			target := arg
			if target == "" {
				target = s.nav.Current()
			}
			s.openExternal(target)
		case "status":
			s.printStatus(ctx)
		case "history":
			s.printHistory()
		case "help":
			s.printHelp()
		case "quit", "exit":
			return nil
		default:
			fmt.Fprintf(s.out, "unknown command %q, try help\n", cmd)
		}
	}
}

func (s *Shell) printPage(page Page) {
	fmt.Fprintf(s.out, "== %s ==\n", page.Title)
	for _, block := range page.Blocks {
		fmt.Fprintln(s.out, block)
	}
}

func (s *Shell) printLinks(page Page) {
	if len(page.Hotspots) == 0 {
		fmt.Fprintln(s.out, "no links on this page")
		return
	}
	for i, h := range page.Hotspots {
		marker := ""
		if h.Kind == HotspotExternal {
			marker = " (external)"
		}
		fmt.Fprintf(s.out, "[%d] %s%s\n", i+1, h.Label, marker)
	}
}

func (s *Shell) click(arg string) {
	page := s.renderer.Render(s.nav.Current())
	idx, err := strconv.Atoi(arg)
	if err != nil || idx < 1 || idx > len(page.Hotspots) {
		fmt.Fprintln(s.out, "usage: click <link number>, see links")
		return
	}
	hotspot := page.Hotspots[idx-1]
	switch hotspot.Kind {
	case HotspotExternal:
		s.openExternal(hotspot.Target)
	default:
		s.nav.Navigate(hotspot.Target)
		s.printPage(s.renderer.Render(s.nav.Current()))
	}
}

func (s *Shell) openExternal(target string) {
	if s.launcher == nil {
		fmt.Fprintln(s.out, "no browser available on this system")
		return
	}
	if err := s.launcher.Open(s.nav.Normalize(target)); err != nil {
		fmt.Fprintf(s.out, "could not open browser: %v\n", err)
		return
	}
	fmt.Fprintf(s.out, "opened %s in %s\n", target, s.launcher.Path())
}

func (s *Shell) printStatus(ctx context.Context) {
	if s.probe == nil {
		fmt.Fprintln(s.out, "no service configured")
		return
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	health, err := s.probe.Check(ctx)
	if err != nil {
		fmt.Fprintf(s.out, "service: %v\n", err)
		return
	}
	fmt.Fprintf(s.out, "service: %s (version %s)\n", health.Status, health.Version)
}

func (s *Shell) printHistory() {
	entries, index := s.nav.History()
	for i, entry := range entries {
		marker := "  "
		if i == index {
			marker = "* "
		}
		fmt.Fprintf(s.out, "%s%s\n", marker, entry)
	}
}

func (s *Shell) printHelp() {
	fmt.Fprintln(s.out, `commands:
  go <url>     navigate to a URL
  back         go back in history
  forward      go forward in history
  refresh      re-render the current page
  home         navigate to the home page
  links        list links on the current page
  click <n>    activate link n
  open [url]   open a URL in a real browser
  status       probe the local service health
  history      show navigation history
  quit         exit`)
}
