package portal

import "strings"

// Jar is the ordered list of cookie fragments ("NAME=value") collected
// during one session. A Jar is never modified in place; With returns a new
// one, so each session owns its cookie state.
type Jar struct {
	fragments []string
}

// With returns a jar holding j's fragments followed by fragments.
func (j Jar) With(fragments ...string) Jar {
	out := make([]string, 0, len(j.fragments)+len(fragments))
	out = append(out, j.fragments...)
	out = append(out, fragments...)
	return Jar{fragments: out}
}

// Header renders the jar as a Cookie header value.
func (j Jar) Header() string {
	return strings.Join(j.fragments, "; ")
}

// Len returns the number of fragments.
func (j Jar) Len() int {
	return len(j.fragments)
}

// Fragments returns a copy of the fragments in order.
func (j Jar) Fragments() []string {
	return append([]string(nil), j.fragments...)
}

// cookieFragment returns the "name=value" part of the first Set-Cookie
// header for name with a non-empty value.
func cookieFragment(setCookies []string, name string) (string, bool) {
	prefix := name + "="
	for _, c := range setCookies {
		c = strings.TrimSpace(c)
		if !strings.HasPrefix(c, prefix) {
			continue
		}
		fragment, _, _ := strings.Cut(c, ";")
		fragment = strings.TrimSpace(fragment)
		if len(fragment) > len(prefix) {
			return fragment, true
		}
	}
	return "", false
}
