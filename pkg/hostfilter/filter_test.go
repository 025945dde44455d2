package hostfilter

import (
	"errors"
	"testing"
)

func TestFilterCheckHost(t *testing.T) {
	f, err := New([]string{"example.com", "Data.Local:8443"}, []string{`.*\.internal\.net`})
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		host    string
		allowed bool
	}{
		{host: "example.com", allowed: true},
		{host: "EXAMPLE.com:8080", allowed: true},
		{host: "data.local:8443", allowed: true},
		{host: "data.local:9000", allowed: false},
		{host: "a.internal.net", allowed: true},
		{host: "a.internal.net:80", allowed: true},
		{host: "internal.net.evil.org", allowed: false},
		{host: "evil.org", allowed: false},
	}
	for _, tt := range tests {
		t.Run(tt.host, func(t *testing.T) {
			err := f.CheckHost(tt.host)
			if tt.allowed && err != nil {
				t.Errorf("expected %s to be allowed, got %v", tt.host, err)
			}
			if !tt.allowed && !errors.Is(err, ErrUnacceptableURL) {
				t.Errorf("expected %s to be rejected, got %v", tt.host, err)
			}
		})
	}
}

func TestEmptyFilterAllowsAll(t *testing.T) {
	var nilFilter *Filter
	if err := nilFilter.CheckHost("anything.org"); err != nil {
		t.Errorf("nil filter: %v", err)
	}
	f, err := New(nil, []string{" "})
	if err != nil {
		t.Fatal(err)
	}
	if !f.Empty() {
		t.Errorf("blank patterns must be ignored")
	}
	if err := f.CheckHost("anything.org"); err != nil {
		t.Errorf("empty filter: %v", err)
	}
}

func TestNewInvalidPattern(t *testing.T) {
	if _, err := New(nil, []string{"("}); err == nil {
		t.Fatal("expected error for invalid pattern")
	}
}

func TestValidate(t *testing.T) {
	f, _ := New([]string{"example.com"}, nil)

	u, err := Validate("https://example.com/data.csv?x=1", f)
	if err != nil {
		t.Fatal(err)
	}
	if u.Path != "/data.csv" {
		t.Errorf("unexpected path %q", u.Path)
	}

	for _, raw := range []string{
		"ftp://example.com/data.csv",
		"https://other.com/data.csv",
		"http:///nohost",
		"://bad",
	} {
		if _, err := Validate(raw, f); !errors.Is(err, ErrUnacceptableURL) {
			t.Errorf("Validate(%q) = %v, want ErrUnacceptableURL", raw, err)
		}
	}
}
