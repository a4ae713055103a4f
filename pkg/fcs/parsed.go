package fcs

import (
	"context"
	"fmt"
	"sync"

	"github.com/kaitai-io/kaitai_struct_go_runtime/kaitai"
)

// ParsedFile is the result of one parse. Events is nil when the file was
// parsed with WithMetadataOnly until ReadData is called. ReadData writes
// Events, so goroutines sharing a metadata-only ParsedFile should use the
// table ReadData returns, or Data, rather than the field.
type ParsedFile struct {
	Path         string
	Header       Header
	Meta         *Metadata
	Channels     []Channel
	ChannelNames []string
	Events       *EventTable
	Warnings     []Warning

	options options
	open    opener
	mu      sync.Mutex
}

// ReadData decodes the DATA segment from the file's original source, storing
// and returning the table. Calling it again returns the same table.
func (p *ParsedFile) ReadData(ctx context.Context) (*EventTable, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.Events != nil {
		return p.Events, nil
	}
	if p.open == nil {
		return nil, errMetadataOnlyNoSource
	}

	src, err := p.open()
	if err != nil {
		return nil, err
	}
	defer src.Close()

	events, err := p.decode(ctx, src.stream())
	if err != nil {
		return nil, err
	}
	p.Events = events
	return events, nil
}

// Data returns the decoded events, or nil if ReadData has not completed yet.
func (p *ParsedFile) Data() *EventTable {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.Events
}

func (p *ParsedFile) decode(ctx context.Context, stream *kaitai.Stream) (*EventTable, error) {
	log := p.options.logger
	if p.Path != "" {
		log = log.With("path", p.Path)
	}
	d := &dataDecoder{
		stream: stream,
		path:   p.Path,
		header: p.Header,
		logger: log,
	}
	return d.decode(ctx, p.Meta.Tot, p.Channels, p.ChannelNames, p.options.decodePath)
}

// MetaMap flattens the metadata into a keyword map: every TEXT keyword with
// its raw value, $PAR, $TOT, $NEXTDATA and $PnB as ints, the resolved channel
// names under "_channel_names_" and the header offsets under "__header__".
func (p *ParsedFile) MetaMap() map[string]any {
	m := p.Meta
	out := make(map[string]any, len(m.keys)+2)
	for _, k := range m.keys {
		out[k] = m.values[k]
	}
	out["$PAR"] = m.Par
	out["$TOT"] = m.Tot
	if _, ok := m.values["$NEXTDATA"]; ok {
		out["$NEXTDATA"] = m.NextData
	}
	for _, ch := range p.Channels {
		out[fmt.Sprintf("$P%dB", ch.Index)] = ch.Bits
	}
	out["_channel_names_"] = append([]string(nil), p.ChannelNames...)
	out["__header__"] = map[string]any{
		"FCS format":     p.Header.Version,
		"text start":     p.Header.TextStart,
		"text end":       p.Header.TextEnd,
		"data start":     p.Header.DataStart,
		"data end":       p.Header.DataEnd,
		"analysis start": p.Header.AnalysisStart,
		"analysis end":   p.Header.AnalysisEnd,
	}
	return out
}
