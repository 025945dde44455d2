// Package hostfilter restricts the remote hosts that tables may reach.
package hostfilter

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"regexp"
	"strings"
)

var ErrUnacceptableURL = errors.New("unacceptable URL")

// Filter allows hosts listed explicitly or matching one of the patterns.
// An empty filter allows every host.
type Filter struct {
	hosts    map[string]struct{}
	patterns []*regexp.Regexp
}

func New(hosts, patterns []string) (*Filter, error) {
	f := &Filter{
		hosts: make(map[string]struct{}, len(hosts)),
	}
	for _, h := range hosts {
		h = strings.ToLower(strings.TrimSpace(h))
		if h == "" {
			continue
		}
		f.hosts[h] = struct{}{}
	}
	for _, p := range patterns {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		re, err := regexp.Compile("^(?:" + p + ")$")
		if err != nil {
			return nil, fmt.Errorf("invalid host pattern %q: %w", p, err)
		}
		f.patterns = append(f.patterns, re)
	}
	return f, nil
}

func (f *Filter) Empty() bool {
	return f == nil || (len(f.hosts) == 0 && len(f.patterns) == 0)
}

func (f *Filter) CheckURL(u *url.URL) error {
	if u == nil {
		return fmt.Errorf("%w: empty URL", ErrUnacceptableURL)
	}
	return f.CheckHost(u.Host)
}

// CheckHost checks a host with an optional port.
func (f *Filter) CheckHost(hostport string) error {
	if f.Empty() {
		return nil
	}
	hostport = strings.ToLower(hostport)
	host := hostport
	if h, _, err := net.SplitHostPort(hostport); err == nil {
		host = h
	}
	host = strings.Trim(host, "[]")
	if _, ok := f.hosts[host]; ok {
		return nil
	}
	if _, ok := f.hosts[hostport]; ok {
		return nil
	}
	for _, re := range f.patterns {
		if re.MatchString(host) || re.MatchString(hostport) {
			return nil
		}
	}
	return fmt.Errorf("%w: host %q is not allowed by the remote host filter", ErrUnacceptableURL, hostport)
}

// Validate parses the raw URL and checks it against the filter.
func Validate(raw string, f *Filter) (*url.URL, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnacceptableURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("%w: unsupported scheme %q", ErrUnacceptableURL, u.Scheme)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("%w: no host in %q", ErrUnacceptableURL, u.Redacted())
	}
	if err := f.CheckURL(u); err != nil {
		return nil, err
	}
	return u, nil
}
