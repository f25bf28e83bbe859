package common

import "io"

// Context bundles the ambient stack (config, logging, lifecycle) that every
// supervisor, client and server instance is built against.
type Context interface {
	io.Closer

	Config() Config
	Logger() Logger
	Control() Control
}

type ctx struct {
	config  Config
	logger  Logger
	control Control
}

func NewContext(config Config) Context {
	return &ctx{
		config:  config,
		logger:  NewStandardLogger(config),
		control: NewControl(nil),
	}
}

func (c *ctx) Close() error {
	return c.control.Close()
}

func (c *ctx) Config() Config {
	return c.config
}

func (c *ctx) Logger() Logger {
	return c.logger
}

func (c *ctx) Control() Control {
	return c.control
}
