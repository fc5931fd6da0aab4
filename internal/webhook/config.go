package webhook

import (
	"net"
	"strings"
	"time"
)

type Config struct {
	Addr    string
	Path    string
	DumpDir string
	MaxBody int64

	Metrics bool
	Pprof   PprofConfig

	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// PprofConfig mounts net/http/pprof under /debug/pprof. A non-loopback
// listener requires Token.
type PprofConfig struct {
	Enabled bool
	Token   string
}

const (
	DefaultAddr    = "127.0.0.1:3000"
	DefaultPath    = "/yclients/webhook"
	DefaultMaxBody = 2 << 20
)

func (c Config) withDefaults() Config {
	if strings.TrimSpace(c.Addr) == "" {
		c.Addr = DefaultAddr
	}
	if strings.TrimSpace(c.Path) == "" {
		c.Path = DefaultPath
	}
	if !strings.HasPrefix(c.Path, "/") {
		c.Path = "/" + c.Path
	}
	if c.MaxBody <= 0 {
		c.MaxBody = DefaultMaxBody
	}
	if c.ReadTimeout <= 0 {
		c.ReadTimeout = 10 * time.Second
	}
	if c.WriteTimeout <= 0 {
		// pprof profile captures run up to 30s.
		c.WriteTimeout = 40 * time.Second
	}
	if c.IdleTimeout <= 0 {
		c.IdleTimeout = 60 * time.Second
	}
	return c
}

func needsRestart(a, b Config) bool {
	a, b = a.withDefaults(), b.withDefaults()
	return a.Addr != b.Addr || a.Path != b.Path || a.Metrics != b.Metrics ||
		a.Pprof != b.Pprof || a.ReadTimeout != b.ReadTimeout ||
		a.WriteTimeout != b.WriteTimeout || a.IdleTimeout != b.IdleTimeout
}

func isLoopbackAddr(addr string) bool {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		host = addr
	}
	host = strings.Trim(host, "[]")
	if host == "" {
		return false
	}
	if strings.EqualFold(host, "localhost") {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
