package browser

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testHome = "https://discord.com"
	testApp  = "http://localhost:5000"
)

func TestNavigatorBackForward(t *testing.T) {
	nav := NewNavigator(testHome, testApp)

	b := nav.Navigate("https://example.com/b")
	c := nav.Navigate("https://example.com/c")
	require.Equal(t, c, nav.Current())

	assert.Equal(t, b, nav.Back())
	assert.Equal(t, testHome, nav.Back())

	assert.Equal(t, b, nav.Forward())
	assert.Equal(t, c, nav.Forward())
}

func TestNavigatorBackAtStartIsNoop(t *testing.T) {
	nav := NewNavigator(testHome, testApp)

	assert.Equal(t, testHome, nav.Back())
	assert.Equal(t, testHome, nav.Back())
	assert.False(t, nav.CanBack())
	assert.Equal(t, testHome, nav.Current())
}

func TestNavigatorForwardAtEndIsNoop(t *testing.T) {
	nav := NewNavigator(testHome, testApp)
	nav.Navigate("https://example.com/b")

	assert.Equal(t, "https://example.com/b", nav.Forward())
	assert.False(t, nav.CanForward())
}

func TestNavigateTruncatesForwardHistory(t *testing.T) {
	nav := NewNavigator(testHome, testApp)
	nav.Navigate("https://example.com/b")
	nav.Navigate("https://example.com/c")
	nav.Back()

	d := nav.Navigate("https://example.com/d")
	assert.Equal(t, d, nav.Current())
	assert.False(t, nav.CanForward())

	// Forward path to c is gone.
	assert.Equal(t, d, nav.Forward())

	entries, index := nav.History()
	assert.Equal(t, []string{testHome, "https://example.com/b", d}, entries)
	assert.Equal(t, 2, index)
}

func TestNavigatorRefreshLeavesHistoryAlone(t *testing.T) {
	nav := NewNavigator(testHome, testApp)
	nav.Navigate("https://example.com/b")

	before, beforeIdx := nav.History()
	assert.Equal(t, "https://example.com/b", nav.Refresh())
	after, afterIdx := nav.History()

	assert.Equal(t, before, after)
	assert.Equal(t, beforeIdx, afterIdx)
}

func TestNavigatorNormalize(t *testing.T) {
	nav := NewNavigator(testHome, testApp)

	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"absolute untouched", "https://example.com/x", "https://example.com/x"},
		{"http untouched", "http://example.com", "http://example.com"},
		{"domain gets scheme", "example.com", "https://example.com"},
		{"bare path goes to app host", "dashboard", testApp + "/dashboard"},
		{"leading slash goes to app host", "/inbox", testApp + "/inbox"},
		{"whitespace trimmed", "  example.com  ", "https://example.com"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, nav.Normalize(tt.input))
		})
	}
}

func TestRendererFirstMatchWins(t *testing.T) {
	r := NewRenderer(testApp)

	login := r.Render("https://discord.com/login")
	assert.Contains(t, login.Title, "Login")

	register := r.Render("https://discord.com/register")
	assert.Contains(t, register.Title, "Register")

	home := r.Render("https://discord.com")
	assert.Contains(t, home.Title, "Your Place")

	www := r.Render("https://www.discord.com/login")
	assert.Equal(t, login.Title, www.Title)
}

func TestRendererUnknownURLRendersPlaceholder(t *testing.T) {
	r := NewRenderer(testApp)

	page := r.Render("https://unknown.example.net/whatever")
	assert.Equal(t, "External Site", page.Title)
	require.NotEmpty(t, page.Hotspots)
	assert.Equal(t, HotspotExternal, page.Hotspots[0].Kind)
}

func TestRendererAppHost(t *testing.T) {
	r := NewRenderer(testApp)

	page := r.Render(testApp + "/dashboard")
	assert.Equal(t, "Localpost", page.Title)
}
