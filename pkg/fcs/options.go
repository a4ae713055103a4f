package fcs

import (
	"log/slog"
	"runtime"
)

// options holds configuration for the parser
type options struct {
	naming       Naming
	metadataOnly bool
	strictText   bool
	escapes      bool
	decodePath   DecodePath
	logger       *slog.Logger
	concurrency  int
}

// Option is a function that configures parser options
type Option func(*options)

// WithChannelNaming selects $PnS (default) or $PnN for channel names
func WithChannelNaming(n Naming) Option {
	return func(o *options) {
		o.naming = n
	}
}

// WithMetadataOnly skips the DATA segment; ParsedFile.ReadData decodes it later
func WithMetadataOnly(enabled bool) Option {
	return func(o *options) {
		o.metadataOnly = enabled
	}
}

// WithStrictText makes a repeated TEXT keyword an error instead of last-wins
func WithStrictText(enabled bool) Option {
	return func(o *options) {
		o.strictText = enabled
	}
}

// WithDelimiterEscapes reads a doubled delimiter inside TEXT as one literal
// delimiter character, as FCS 3.0 prescribes. Off by default because files
// with empty keyword values do not split correctly under it.
func WithDelimiterEscapes(enabled bool) Option {
	return func(o *options) {
		o.escapes = enabled
	}
}

// WithDecodePath forces the uniform or mixed DATA path
func WithDecodePath(p DecodePath) Option {
	return func(o *options) {
		o.decodePath = p
	}
}

// WithLogger sets a custom logger
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithConcurrency bounds the number of files ParseFiles decodes at once
func WithConcurrency(n int) Option {
	return func(o *options) {
		o.concurrency = n
	}
}

// defaultOptions returns the default configuration
func defaultOptions() options {
	return options{
		naming:      NamingPnS,
		decodePath:  PathAuto,
		logger:      slog.Default(),
		concurrency: runtime.GOMAXPROCS(0),
	}
}

func (o options) with(opts ...Option) options {
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	if o.concurrency < 1 {
		o.concurrency = 1
	}
	return o
}
