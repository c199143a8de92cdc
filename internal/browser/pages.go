package browser

import (
	"fmt"
	"net/url"
	"strings"
)

// HotspotKind distinguishes how activating a hotspot is handled.
type HotspotKind int

const (
	// HotspotNavigate feeds the target back into the navigator.
	HotspotNavigate HotspotKind = iota
	// HotspotExternal hands the target to the real browser launcher.
	HotspotExternal
)

// Hotspot is an activatable element on a rendered page.
type Hotspot struct {
	Label  string
	Target string
	Kind   HotspotKind
}

// Page is the structured content produced for a URL.
type Page struct {
	Title    string
	Blocks   []string
	Hotspots []Hotspot
}

// rule pairs a URL predicate with the renderer that handles it. Rules are
// evaluated in order and the first match wins, so specific path prefixes
// must come before bare-host fallbacks.
type rule struct {
	match  func(u *url.URL) bool
	render func(u *url.URL) Page
}

// Renderer maps URLs to page content. Unknown URLs render a placeholder
// instead of failing.
type Renderer struct {
	rules   []rule
	appHost string
}

// NewRenderer builds the rule table for the given local app base URL.
func NewRenderer(appBase string) *Renderer {
	appHost := ""
	if parsed, err := url.Parse(appBase); err == nil {
		appHost = parsed.Host
	}
	r := &Renderer{appHost: appHost}
	r.rules = []rule{
		{r.matchHost("discord.com", "/login"), r.renderDiscordLogin},
		{r.matchHost("discord.com", "/register"), r.renderDiscordRegister},
		{r.matchHost("discord.com", "/app"), r.renderDiscordApp},
		{r.matchHost("discord.com", ""), r.renderDiscordHome},
		{r.matchApp, r.renderApp},
	}
	return r
}

// Render resolves a URL to page content.
func (r *Renderer) Render(raw string) Page {
	u, err := url.Parse(raw)
	if err != nil {
		return r.renderExternal(raw)
	}
	for _, rl := range r.rules {
		if rl.match(u) {
			return rl.render(u)
		}
	}
	return r.renderExternal(raw)
}

func (r *Renderer) matchHost(host, pathPrefix string) func(*url.URL) bool {
	return func(u *url.URL) bool {
		if !strings.EqualFold(strings.TrimPrefix(u.Host, "www."), host) {
			return false
		}
		if pathPrefix == "" {
			return true
		}
		return strings.HasPrefix(u.Path, pathPrefix)
	}
}

func (r *Renderer) matchApp(u *url.URL) bool {
	return r.appHost != "" && u.Host == r.appHost
}

func (r *Renderer) renderDiscordHome(u *url.URL) Page {
	return Page{
		Title: "Discord | Your Place to Talk and Hang Out",
		Blocks: []string{
			"IMAGINE A PLACE...",
			"...where you can belong to a school club, a gaming group, or a worldwide art community.",
			"Where just you and a handful of friends can spend time together.",
		},
		Hotspots: []Hotspot{
			{Label: "Login", Target: "https://discord.com/login", Kind: HotspotNavigate},
			{Label: "Sign Up", Target: "https://discord.com/register", Kind: HotspotNavigate},
			{Label: "Open Discord in your browser", Target: "https://discord.com/app", Kind: HotspotNavigate},
			{Label: "Download for Windows", Target: "https://discord.com/download", Kind: HotspotExternal},
		},
	}
}

func (r *Renderer) renderDiscordLogin(u *url.URL) Page {
	return Page{
		Title: "Discord | Login",
		Blocks: []string{
			"Welcome back!",
			"We're so excited to see you again!",
			"Email or Phone Number: [____________]",
			"Password: [____________]",
		},
		Hotspots: []Hotspot{
			{Label: "Log In", Target: "https://discord.com/app", Kind: HotspotNavigate},
			{Label: "Need an account? Register", Target: "https://discord.com/register", Kind: HotspotNavigate},
		},
	}
}

func (r *Renderer) renderDiscordRegister(u *url.URL) Page {
	return Page{
		Title: "Discord | Register",
		Blocks: []string{
			"Create an account",
			"Email: [____________]",
			"Username: [____________]",
			"Password: [____________]",
		},
		Hotspots: []Hotspot{
			{Label: "Continue", Target: "https://discord.com/app", Kind: HotspotNavigate},
			{Label: "Already have an account?", Target: "https://discord.com/login", Kind: HotspotNavigate},
		},
	}
}

func (r *Renderer) renderDiscordApp(u *url.URL) Page {
	return Page{
		Title: "Discord | Friends",
		Blocks: []string{
			"# general",
			"Welcome to the server!",
			"No one is around right now. Check back later.",
		},
		Hotspots: []Hotspot{
			{Label: "Home", Target: "https://discord.com", Kind: HotspotNavigate},
		},
	}
}

func (r *Renderer) renderApp(u *url.URL) Page {
	return Page{
		Title: "Localpost",
		Blocks: []string{
			fmt.Sprintf("Local application page: %s", u.Path),
			"This page is served by the local account service. Open it in a real browser to interact with it.",
		},
		Hotspots: []Hotspot{
			{Label: "Open in browser", Target: u.String(), Kind: HotspotExternal},
		},
	}
}

func (r *Renderer) renderExternal(raw string) Page {
	return Page{
		Title: "External Site",
		Blocks: []string{
			fmt.Sprintf("Content for %s is not simulated.", raw),
			"Use the launcher to open it in a real browser.",
		},
		Hotspots: []Hotspot{
			{Label: "Open in browser", Target: raw, Kind: HotspotExternal},
		},
	}
}
