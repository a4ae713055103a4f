package fcs

import (
	"fmt"
)

// validate checks the assumptions the DATA decoder relies on and resolves each
// channel's Layout. It runs once, before any DATA byte is read.
func validate(m *Metadata, chs []Channel) error {
	if m.NextData != 0 {
		return fmt.Errorf("%w: $NEXTDATA = %d, only single-dataset files are supported", ErrUnsupportedFeature, m.NextData)
	}
	if m.Mode != "L" {
		if m.ZeroBased {
			return fmt.Errorf("%w: $MODE = %q with $P0B numbering, only list mode (L) is supported", ErrUnsupportedFeature, m.Mode)
		}
		return fmt.Errorf("%w: $MODE = %q, only list mode (L) is supported", ErrUnsupportedFeature, m.Mode)
	}
	order, ok := parseByteOrder(m.ByteOrd)
	if !ok {
		return fmt.Errorf("%w: $BYTEORD = %q", ErrUnsupportedFeature, m.ByteOrd)
	}
	switch m.DataType {
	case "F", "D", "I":
	default:
		return fmt.Errorf("%w: $DATATYPE = %q, want F, D or I", ErrUnsupportedFeature, m.DataType)
	}

	for i := range chs {
		l, err := layoutFor(m.DataType, chs[i].Bits, order)
		if err != nil {
			return fmt.Errorf("channel $P%d: %w", chs[i].Index, err)
		}
		chs[i].Layout = l
	}
	return nil
}
