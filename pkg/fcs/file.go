package fcs

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"
)

// Parser decodes FCS files. Its options are fixed at construction, so a
// single Parser may be shared by any number of goroutines.
type Parser struct {
	options options
}

// NewParser creates a new parser instance with the given options
func NewParser(opts ...Option) *Parser {
	return &Parser{options: defaultOptions().with(opts...)}
}

// Global parser instance for convenience functions
var globalParser *Parser
var globalParserOnce sync.Once

// getGlobalParser returns a singleton parser instance
func getGlobalParser() *Parser {
	globalParserOnce.Do(func() {
		globalParser = NewParser()
	})
	return globalParser
}

// Parse decodes an in-memory FCS file. data is not modified or retained past
// the lifetime of the returned ParsedFile.
func Parse(ctx context.Context, data []byte, opts ...Option) (*ParsedFile, error) {
	return getGlobalParser().Parse(ctx, data, opts...)
}

// ParseFile decodes the FCS file at path.
func ParseFile(ctx context.Context, path string, opts ...Option) (*ParsedFile, error) {
	return getGlobalParser().ParseFile(ctx, path, opts...)
}

// ParseFiles decodes several files concurrently. Results are in path order.
func ParseFiles(ctx context.Context, paths []string, opts ...Option) ([]*ParsedFile, error) {
	return getGlobalParser().ParseFiles(ctx, paths, opts...)
}

// ParseFCS is the flat entry point: src is a file path (string) or the file
// contents ([]byte). The event table is nil when metaDataOnly is set.
func ParseFCS(src any, metaDataOnly bool, naming Naming) (map[string]any, *EventTable, error) {
	opts := []Option{WithMetadataOnly(metaDataOnly), WithChannelNaming(naming)}
	var (
		pf  *ParsedFile
		err error
	)
	switch v := src.(type) {
	case string:
		pf, err = ParseFile(context.Background(), v, opts...)
	case []byte:
		pf, err = Parse(context.Background(), v, opts...)
	default:
		return nil, nil, fmt.Errorf("ParseFCS: unsupported source type %T, want string path or []byte", src)
	}
	if err != nil {
		return nil, nil, err
	}
	return pf.MetaMap(), pf.Events, nil
}

// Parse decodes an in-memory FCS file
func (p *Parser) Parse(ctx context.Context, data []byte, opts ...Option) (*ParsedFile, error) {
	return p.parse(ctx, "", bytesOpener(data), p.options.with(opts...))
}

// ParseFile decodes the FCS file at path
func (p *Parser) ParseFile(ctx context.Context, path string, opts ...Option) (*ParsedFile, error) {
	return p.parse(ctx, path, fileOpener(path), p.options.with(opts...))
}

// ParseFiles decodes several files with at most WithConcurrency parses in
// flight. The first failure cancels the rest.
func (p *Parser) ParseFiles(ctx context.Context, paths []string, opts ...Option) ([]*ParsedFile, error) {
	o := p.options.with(opts...)
	out := make([]*ParsedFile, len(paths))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.concurrency)
	for i, path := range paths {
		g.Go(func() error {
			pf, err := p.parse(gctx, path, fileOpener(path), o)
			if err != nil {
				return err
			}
			out[i] = pf
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func (p *Parser) parse(ctx context.Context, path string, open opener, o options) (*ParsedFile, error) {
	if !o.naming.valid() {
		return nil, fmt.Errorf("channel naming %q: want %q or %q", o.naming, NamingPnS, NamingPnN)
	}
	log := o.logger
	if path != "" {
		log = log.With("path", path)
	}
	log.DebugContext(ctx, "Starting FCS parsing", "metadata_only", o.metadataOnly, "naming", string(o.naming))

	src, err := open()
	if err != nil {
		return nil, err
	}
	defer src.Close()
	stream := src.stream()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	header, warnings, err := readHeader(stream, path)
	if err != nil {
		return nil, err
	}
	log.DebugContext(ctx, "Read header", "version", header.Version,
		"text", [2]int64{header.TextStart, header.TextEnd}, "data", [2]int64{header.DataStart, header.DataEnd})

	meta, err := readText(stream, header, path, textOptions{strict: o.strictText, escapes: o.escapes})
	if err != nil {
		return nil, err
	}
	log.DebugContext(ctx, "Parsed TEXT segment", "keywords", len(meta.keys), "par", meta.Par, "tot", meta.Tot)

	channels := resolveChannels(meta)
	names, warn, err := resolveNames(channels, o.naming)
	if err != nil {
		return nil, &ParseError{Path: path, Segment: SegmentText, Offset: header.TextStart, Err: err}
	}
	if warn != nil {
		warnings = append(warnings, *warn)
	}

	if err := validate(meta, channels); err != nil {
		return nil, &ParseError{Path: path, Segment: SegmentText, Offset: header.TextStart, Err: err}
	}

	pf := &ParsedFile{
		Path:         path,
		Header:       header,
		Meta:         meta,
		Channels:     channels,
		ChannelNames: names,
		Warnings:     warnings,
		options:      o,
		open:         open,
	}
	for _, w := range warnings {
		log.WarnContext(ctx, "FCS parse warning", "kind", string(w.Kind), "detail", w.Message)
	}

	if o.metadataOnly {
		log.DebugContext(ctx, "Finished FCS parsing (metadata only)")
		return pf, nil
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	events, err := pf.decode(ctx, stream)
	if err != nil {
		return nil, err
	}
	pf.Events = events
	log.DebugContext(ctx, "Finished FCS parsing", "events", events.Rows(), "channels", events.Cols())
	return pf, nil
}
