package browser

import "strings"

// Navigator tracks browsing history as a list of visited URLs plus a cursor.
// Navigating to a new URL discards any forward history beyond the cursor.
// Back and forward clamp at the ends instead of failing.
type Navigator struct {
	history []string
	index   int
	appBase string
}

// NewNavigator starts history at the given home URL.
func NewNavigator(homeURL, appBase string) *Navigator {
	return &Navigator{
		history: []string{homeURL},
		index:   0,
		appBase: strings.TrimRight(appBase, "/"),
	}
}

// Current returns the URL under the cursor.
func (n *Navigator) Current() string {
	return n.history[n.index]
}

// History returns a copy of the visited URLs and the cursor position.
func (n *Navigator) History() ([]string, int) {
	out := make([]string, len(n.history))
	copy(out, n.history)
	return out, n.index
}

// Navigate visits a URL, truncating forward history.
func (n *Navigator) Navigate(raw string) string {
	target := n.Normalize(raw)
	n.history = append(n.history[:n.index+1], target)
	n.index = len(n.history) - 1
	return target
}

// Back moves the cursor one step toward the oldest entry. At the oldest
// entry it stays put.
func (n *Navigator) Back() string {
	if n.index > 0 {
		n.index--
	}
	return n.history[n.index]
}

// Forward moves the cursor one step toward the newest entry. At the newest
// entry it stays put.
func (n *Navigator) Forward() string {
	if n.index < len(n.history)-1 {
		n.index++
	}
	return n.history[n.index]
}

// CanBack reports whether Back would move the cursor.
func (n *Navigator) CanBack() bool {
	return n.index > 0
}

// CanForward reports whether Forward would move the cursor.
func (n *Navigator) CanForward() bool {
	return n.index < len(n.history)-1
}

// Refresh returns the current URL without touching history.
func (n *Navigator) Refresh() string {
	return n.history[n.index]
}

// Normalize turns loose address-bar input into a full URL. Input without a
// scheme and without a dot is treated as a path on the local app host;
// anything else that lacks a scheme gets https.
func (n *Navigator) Normalize(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return n.Current()
	}
	if strings.HasPrefix(raw, "http://") || strings.HasPrefix(raw, "https://") {
		return raw
	}
	if !strings.Contains(raw, ".") {
		return n.appBase + "/" + strings.TrimLeft(raw, "/")
	}
	return "https://" + raw
}
