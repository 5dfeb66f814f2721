// Package sites defines the fixed set of Stack Exchange network sites the
// tool visits. All of them share the same page structure and login flow and
// differ only in hostname.
package sites

import "fmt"

// Site is a site identifier; it doubles as the hostname without ".com".
type Site string

// The four sites visited on every run
const (
	AskUbuntu     Site = "askubuntu"
	ServerFault   Site = "serverfault"
	StackOverflow Site = "stackoverflow"
	GIS           Site = "gis.stackexchange"
)

var all = []Site{AskUbuntu, ServerFault, StackOverflow, GIS}

// All returns the sites in visiting order. The slice is a copy.
func All() []Site {
	out := make([]Site, len(all))
	copy(out, all)
	return out
}

// URL returns the site's landing page
func (s Site) URL() string {
	return fmt.Sprintf("https://%s.com", string(s))
}

func (s Site) String() string {
	return string(s)
}
