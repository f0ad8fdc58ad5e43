package internal

import (
	"io"

	"github.com/starford/gleaner/internal/bot"
)

// Option is a functional option for configuring the application.
type Option func(*application)

type application struct {
	config    *Config
	version   string
	logOutput io.Writer
	transport bot.Transport
}

// WithConfig sets the application configuration.
func WithConfig(cfg *Config) Option {
	return func(a *application) {
		a.config = cfg
	}
}

// WithVersion sets the version reported by the MCP server.
func WithVersion(v string) Option {
	return func(a *application) {
		a.version = v
	}
}

// WithLogOutput redirects the JSON log stream. MCP over stdio needs stdout
// for the protocol, so it logs to stderr.
func WithLogOutput(w io.Writer) Option {
	return func(a *application) {
		a.logOutput = w
	}
}

// WithTransport connects the chat bot to t instead of the configured NATS
// bridge.
func WithTransport(t bot.Transport) Option {
	return func(a *application) {
		a.transport = t
	}
}
