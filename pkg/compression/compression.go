// Package compression chooses and applies the stream compression of remote resources.
package compression

import (
	"errors"
	"fmt"
	"path"
	"strings"
)

var ErrUnknownMethod = errors.New("unknown compression method")

type Method string

const (
	None    Method = "none"
	Auto    Method = "auto"
	Gzip    Method = "gzip"
	Deflate Method = "deflate"
	Brotli  Method = "br"
	Zstd    Method = "zstd"
	LZ4     Method = "lz4"
	Snappy  Method = "snappy"
)

var aliases = map[string]Method{
	"":        Auto,
	"auto":    Auto,
	"none":    None,
	"gzip":    Gzip,
	"gz":      Gzip,
	"deflate": Deflate,
	"zlib":    Deflate,
	"br":      Brotli,
	"brotli":  Brotli,
	"zstd":    Zstd,
	"zst":     Zstd,
	"lz4":     LZ4,
	"snappy":  Snappy,
	"sz":      Snappy,
}

var extensions = map[string]Method{
	".gz":      Gzip,
	".deflate": Deflate,
	".br":      Brotli,
	".zst":     Zstd,
	".zstd":    Zstd,
	".lz4":     LZ4,
	".sz":      Snappy,
}

// Parse returns the method by its name or alias, the empty name means Auto.
func Parse(name string) (Method, error) {
	m, ok := aliases[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownMethod, name)
	}
	return m, nil
}

// Choose resolves the Auto hint by the suffix of the resource path.
// Any other hint is returned as is.
func Choose(p string, hint Method) Method {
	if hint != Auto && hint != "" {
		return hint
	}
	if i := strings.IndexAny(p, "?#"); i >= 0 {
		p = p[:i]
	}
	if m, ok := extensions[strings.ToLower(path.Ext(p))]; ok {
		return m
	}
	return None
}

// Extension returns the canonical file suffix of the method.
func Extension(m Method) string {
	switch m {
	case Gzip:
		return ".gz"
	case Deflate:
		return ".deflate"
	case Brotli:
		return ".br"
	case Zstd:
		return ".zst"
	case LZ4:
		return ".lz4"
	case Snappy:
		return ".sz"
	}
	return ""
}

// ContentEncoding returns the HTTP Content-Encoding token of the method, if any.
func ContentEncoding(m Method) string {
	switch m {
	case Gzip:
		return "gzip"
	case Deflate:
		return "deflate"
	case Brotli:
		return "br"
	case Zstd:
		return "zstd"
	}
	return ""
}
