package main

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/redpanda-data/benthos/v4/public/service"

	"github.com/twinfer/fcs-plugin/pkg/fcs"
	"github.com/twinfer/fcs-plugin/pkg/gate"
)

// FCSProcessor is a Benthos processor that decodes FCS 3.0 flow cytometry
// files carried as message payloads into structured messages.
type FCSProcessor struct {
	config   FCSConfig
	parser   *fcs.Parser
	gates    *gate.Set
	logger   *service.Logger
	mParsed  *service.MetricCounter
	mEvents  *service.MetricCounter
	mGated   *service.MetricCounter
	mErrors  *service.MetricCounter
	mWarning *service.MetricCounter
}

// FCSConfig contains configuration parameters for the FCS processor.
type FCSConfig struct {
	ChannelNaming    string `json:"channel_naming" yaml:"channel_naming"`
	MetaDataOnly     bool   `json:"meta_data_only" yaml:"meta_data_only"`
	StrictText       bool   `json:"strict_text" yaml:"strict_text"`
	DelimiterEscapes bool   `json:"delimiter_escapes" yaml:"delimiter_escapes"`
	GatesPath        string `json:"gates_path" yaml:"gates_path"`
	Gate             string `json:"gate" yaml:"gate"`
}

func init() {
	err := service.RegisterProcessor(
		"fcs",
		fcsProcessorConfig(),
		func(conf *service.ParsedConfig, mgr *service.Resources) (service.Processor, error) {
			return newFCSProcessorFromConfig(conf, mgr)
		},
	)
	if err != nil {
		panic(err)
	}
}

func main() {
	service.RunCLI(context.Background())
}

// fcsProcessorConfig returns a config spec for an fcs processor.
func fcsProcessorConfig() *service.ConfigSpec {
	return service.NewConfigSpec().
		Summary("Decodes FCS 3.0 flow cytometry files into structured messages.").
		Description("Each message payload is read as a complete FCS file. The output message holds the TEXT keywords under `meta`, the channel schema under `channels` and, unless `meta_data_only` is set, the event matrix under `events` with its column names under `columns`. A YAML gate set can add derived channels and narrow the events to a named gate.").
		Field(service.NewStringField("channel_naming").
			Description("Which keyword names the channels: `$PnS` (long names) or `$PnN` (short names). Falls back to the other one when the preferred names are missing or not unique.").
			Default(string(fcs.NamingPnS))).
		Field(service.NewBoolField("meta_data_only").
			Description("Only decode the HEADER and TEXT segments.").
			Default(false)).
		Field(service.NewBoolField("strict_text").
			Description("Fail on repeated TEXT keywords instead of keeping the last value.").
			Default(false)).
		Field(service.NewBoolField("delimiter_escapes").
			Description("Read a doubled TEXT delimiter as one literal delimiter character.").
			Default(false).
			Advanced()).
		Field(service.NewStringField("gates_path").
			Description("Path to a YAML gate set. Its derived channels are appended to the events.").
			Example("./gates/lymphocytes.yaml").
			Default("")).
		Field(service.NewStringField("gate").
			Description("Name of the gate in `gates_path` whose events are emitted.").
			Default("")).
		Version("0.1.0")
}

// newFCSProcessorFromConfig creates a new FCSProcessor from a parsed config.
func newFCSProcessorFromConfig(conf *service.ParsedConfig, mgr *service.Resources) (*FCSProcessor, error) {
	var config FCSConfig
	var err error

	if config.ChannelNaming, err = conf.FieldString("channel_naming"); err != nil {
		return nil, err
	}
	if config.MetaDataOnly, err = conf.FieldBool("meta_data_only"); err != nil {
		return nil, err
	}
	if config.StrictText, err = conf.FieldBool("strict_text"); err != nil {
		return nil, err
	}
	if config.DelimiterEscapes, err = conf.FieldBool("delimiter_escapes"); err != nil {
		return nil, err
	}
	if config.GatesPath, err = conf.FieldString("gates_path"); err != nil {
		return nil, err
	}
	if config.Gate, err = conf.FieldString("gate"); err != nil {
		return nil, err
	}

	naming := fcs.Naming(config.ChannelNaming)
	if naming != fcs.NamingPnS && naming != fcs.NamingPnN {
		return nil, fmt.Errorf("channel_naming must be %s or %s, got %q", fcs.NamingPnS, fcs.NamingPnN, config.ChannelNaming)
	}

	var gates *gate.Set
	if config.GatesPath != "" {
		if gates, err = gate.LoadSet(config.GatesPath); err != nil {
			return nil, err
		}
		if config.Gate != "" {
			if _, err := gates.Chain(config.Gate); err != nil {
				return nil, err
			}
		}
	} else if config.Gate != "" {
		return nil, fmt.Errorf("gate %q configured without gates_path", config.Gate)
	}

	logger := mgr.Logger()
	metrics := mgr.Metrics()

	return &FCSProcessor{
		config: config,
		parser: fcs.NewParser(
			fcs.WithChannelNaming(naming),
			fcs.WithMetadataOnly(config.MetaDataOnly),
			fcs.WithStrictText(config.StrictText),
			fcs.WithDelimiterEscapes(config.DelimiterEscapes),
			// Warnings are reported through the Benthos logger instead.
			fcs.WithLogger(slog.New(slog.DiscardHandler)),
		),
		gates:    gates,
		logger:   logger,
		mParsed:  metrics.NewCounter("fcs_parsed_messages"),
		mEvents:  metrics.NewCounter("fcs_decoded_events"),
		mGated:   metrics.NewCounter("fcs_gated_events"),
		mErrors:  metrics.NewCounter("fcs_processing_errors"),
		mWarning: metrics.NewCounter("fcs_parse_warnings"),
	}, nil
}

// Process decodes one FCS file.
func (p *FCSProcessor) Process(ctx context.Context, msg *service.Message) (service.MessageBatch, error) {
	data, err := msg.AsBytes()
	if err != nil {
		return p.fail(msg, fmt.Errorf("failed to get binary data from message: %w", err))
	}
	if len(data) == 0 {
		return p.fail(msg, fmt.Errorf("empty FCS payload"))
	}

	pf, err := p.parser.Parse(ctx, data)
	if err != nil {
		return p.fail(msg, fmt.Errorf("failed to decode FCS payload of %d bytes: %w", len(data), err))
	}
	for _, w := range pf.Warnings {
		p.logger.Warnf("FCS parse warning: %s", w)
		p.mWarning.Incr(1)
	}

	events := pf.Events
	if events != nil {
		p.mEvents.Incr(int64(events.Rows()))
		switch {
		case p.gates != nil && p.config.Gate != "":
			if events, err = p.gates.Apply(events, p.config.Gate); err != nil {
				return p.fail(msg, fmt.Errorf("failed to apply gate %q: %w", p.config.Gate, err))
			}
			p.mGated.Incr(int64(events.Rows()))
		case p.gates != nil:
			if events, err = p.gates.Derive(events); err != nil {
				return p.fail(msg, fmt.Errorf("failed to derive channels: %w", err))
			}
		}
	}

	result := map[string]any{
		"meta":     structuredMeta(pf.MetaMap()),
		"channels": structuredChannels(pf),
	}
	if events != nil {
		result["columns"] = structuredColumns(events)
		result["events"] = structuredEvents(events)
	}

	p.logger.Debugf("Decoded FCS payload: %d channels, %d events", len(pf.Channels), pf.Meta.Tot)
	p.mParsed.Incr(1)

	newMsg := service.NewMessage(nil)
	newMsg.SetStructured(result)

	_ = msg.MetaWalk(func(key, value string) error {
		newMsg.MetaSet(key, value)
		return nil
	})
	newMsg.MetaSet("fcs_version", pf.Header.Version)
	newMsg.MetaSet("fcs_channels", strconv.Itoa(len(pf.Channels)))
	if events != nil {
		newMsg.MetaSet("fcs_events", strconv.Itoa(events.Rows()))
	} else {
		newMsg.MetaSet("fcs_events", strconv.Itoa(pf.Meta.Tot))
	}
	if p.config.Gate != "" {
		newMsg.MetaSet("fcs_gate", p.config.Gate)
	}

	return service.MessageBatch{newMsg}, nil
}

func (p *FCSProcessor) fail(msg *service.Message, err error) (service.MessageBatch, error) {
	p.logger.Errorf("%v", err)
	p.mErrors.Incr(1)
	msg.SetError(err)
	return service.MessageBatch{msg}, nil
}

// structuredMeta converts MetaMap values into the JSON-like shapes Benthos
// expects from structured messages.
func structuredMeta(meta map[string]any) map[string]any {
	out := make(map[string]any, len(meta))
	for k, v := range meta {
		out[k] = structuredValue(v)
	}
	return out
}

func structuredValue(v any) any {
	switch t := v.(type) {
	case int:
		return int64(t)
	case []string:
		list := make([]any, len(t))
		for i, s := range t {
			list[i] = s
		}
		return list
	case map[string]any:
		return structuredMeta(t)
	default:
		return v
	}
}

func structuredChannels(pf *fcs.ParsedFile) []any {
	out := make([]any, len(pf.Channels))
	for i, ch := range pf.Channels {
		out[i] = map[string]any{
			"index":      int64(ch.Index),
			"name":       pf.ChannelNames[i],
			"short_name": ch.ShortName,
			"long_name":  ch.LongName,
			"bits":       int64(ch.Bits),
			"range":      ch.Range,
			"kind":       ch.Layout.Kind.String(),
		}
	}
	return out
}

func structuredColumns(t *fcs.EventTable) []any {
	names := t.Names()
	out := make([]any, len(names))
	for i, n := range names {
		out[i] = n
	}
	return out
}

func structuredEvents(t *fcs.EventTable) []any {
	out := make([]any, t.Rows())
	cols := t.Cols()
	for r := range out {
		row := make([]any, cols)
		for c := 0; c < cols; c++ {
			row[c] = t.At(r, c)
		}
		out[r] = row
	}
	return out
}

// Close the processor resources
func (p *FCSProcessor) Close(ctx context.Context) error {
	p.logger.Debug("Closing FCS processor")
	return nil
}
