package fcs

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/kaitai-io/kaitai_struct_go_runtime/kaitai"
)

// DecodePath selects how DATA records are walked.
type DecodePath int

const (
	// PathAuto uses the uniform path when every channel shares one Layout.
	PathAuto DecodePath = iota
	// PathUniform bulk-reads the segment as one scalar array.
	PathUniform
	// PathMixed reads one composite record per event, field by field.
	PathMixed
)

func (p DecodePath) String() string {
	switch p {
	case PathAuto:
		return "auto"
	case PathUniform:
		return "uniform"
	case PathMixed:
		return "mixed"
	default:
		return fmt.Sprintf("DecodePath(%d)", int(p))
	}
}

// how often the mixed path checks for cancellation
const cancelCheckEvents = 4096

type dataDecoder struct {
	stream *kaitai.Stream
	path   string
	header Header
	logger *slog.Logger
}

// decode reads $TOT events of the given channels starting at DATA start.
func (d *dataDecoder) decode(ctx context.Context, events int, chs []Channel, names []string, path DecodePath) (*EventTable, error) {
	bytesPerEvent := 0
	for _, ch := range chs {
		bytesPerEvent += ch.Layout.Kind.Width()
	}
	size, err := d.stream.Size()
	if err != nil {
		return nil, newParseError(d.path, SegmentData, d.header.DataStart, ErrTruncatedData, "size: %v", err)
	}
	// Compare by division first so a hostile $TOT cannot overflow the product.
	avail := d.header.DataEnd - d.header.DataStart + 1
	if events > 0 && bytesPerEvent > 0 && (avail <= 0 || int64(events) > avail/int64(bytesPerEvent)) {
		return nil, newParseError(d.path, SegmentData, d.header.DataStart, ErrTruncatedData,
			"%d events x %d bytes do not fit DATA segment [%d, %d]", events, bytesPerEvent, d.header.DataStart, d.header.DataEnd)
	}
	total := int64(bytesPerEvent) * int64(events)
	end := d.header.DataStart + total

	if end > d.header.DataEnd+1 {
		return nil, newParseError(d.path, SegmentData, d.header.DataStart, ErrTruncatedData,
			"%d events x %d bytes end at %d, past DATA end %d", events, bytesPerEvent, end-1, d.header.DataEnd)
	}
	if end > size {
		return nil, newParseError(d.path, SegmentData, d.header.DataStart, ErrTruncatedData,
			"%d events x %d bytes end at %d, past end of file (%d bytes)", events, bytesPerEvent, end-1, size)
	}

	uniform := isUniform(chs)
	switch path {
	case PathAuto:
		if uniform {
			path = PathUniform
		} else {
			path = PathMixed
		}
	case PathUniform:
		if !uniform {
			return nil, newParseError(d.path, SegmentData, d.header.DataStart, ErrUnsupportedFeature,
				"uniform decode requested but channel layouts differ")
		}
	case PathMixed:
	default:
		return nil, fmt.Errorf("%w: %v", errUnknownDecodePath, path)
	}

	d.logger.DebugContext(ctx, "Decoding DATA segment",
		"path", path.String(), "events", events, "channels", len(chs), "bytes_per_event", bytesPerEvent)

	if _, err := d.stream.Seek(d.header.DataStart, io.SeekStart); err != nil {
		return nil, newParseError(d.path, SegmentData, d.header.DataStart, ErrTruncatedData, "seek: %v", err)
	}

	var values []float64
	if path == PathUniform {
		values, err = d.decodeUniform(ctx, events, chs)
	} else {
		values, err = d.decodeMixed(ctx, events, chs)
	}
	if err != nil {
		return nil, err
	}
	return NewEventTable(names, events, values)
}

func isUniform(chs []Channel) bool {
	for _, ch := range chs[min(1, len(chs)):] {
		if ch.Layout != chs[0].Layout {
			return false
		}
	}
	return true
}

// decodeUniform reads events*channels scalars of one shared layout in a single
// read, corrects the byte order once, then widens every scalar to float64.
func (d *dataDecoder) decodeUniform(ctx context.Context, events int, chs []Channel) ([]float64, error) {
	n := events * len(chs)
	if n == 0 {
		return []float64{}, nil
	}
	layout := chs[0].Layout
	width := layout.Kind.Width()

	raw, err := d.stream.ReadBytes(n * width)
	if err != nil {
		return nil, newParseError(d.path, SegmentData, d.header.DataStart, ErrTruncatedData, "read %d bytes: %v", n*width, err)
	}
	if layout.Order != nativeOrder() {
		swapInPlace(raw, width)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	values := make([]float64, n)
	for i := range values {
		values[i] = layout.nativeValue(raw[i*width:])
	}
	return values, nil
}

// decodeMixed reads one field at a time, each with its own width and order.
func (d *dataDecoder) decodeMixed(ctx context.Context, events int, chs []Channel) ([]float64, error) {
	values := make([]float64, 0, events*len(chs))
	for ev := 0; ev < events; ev++ {
		if ev%cancelCheckEvents == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		for _, ch := range chs {
			v, err := readScalar(d.stream, ch.Layout)
			if err != nil {
				pos, _ := d.stream.Pos()
				return nil, newParseError(d.path, SegmentData, pos, ErrTruncatedData,
					"event %d channel $P%d: %v", ev, ch.Index, err)
			}
			values = append(values, v)
		}
	}
	return values, nil
}

func readScalar(s *kaitai.Stream, l Layout) (float64, error) {
	le := l.Order == LittleEndian
	switch l.Kind {
	case KindF32:
		var v float32
		var err error
		if le {
			v, err = s.ReadF4le()
		} else {
			v, err = s.ReadF4be()
		}
		return float64(v), err
	case KindF64:
		if le {
			return s.ReadF8le()
		}
		return s.ReadF8be()
	case KindU8:
		v, err := s.ReadU1()
		return float64(v), err
	case KindU16:
		var v uint16
		var err error
		if le {
			v, err = s.ReadU2le()
		} else {
			v, err = s.ReadU2be()
		}
		return float64(v), err
	case KindU32:
		var v uint32
		var err error
		if le {
			v, err = s.ReadU4le()
		} else {
			v, err = s.ReadU4be()
		}
		return float64(v), err
	case KindU64:
		var v uint64
		var err error
		if le {
			v, err = s.ReadU8le()
		} else {
			v, err = s.ReadU8be()
		}
		return float64(v), err
	}
	return 0, fmt.Errorf("%w: layout %v", ErrUnsupportedFeature, l)
}
