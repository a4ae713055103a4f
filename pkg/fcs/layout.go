package fcs

import (
	"encoding/binary"
	"fmt"
	"math"
)

// Kind is the machine type of one DATA scalar.
type Kind uint8

const (
	KindF32 Kind = iota + 1
	KindF64
	KindU8
	KindU16
	KindU32
	KindU64
)

func (k Kind) String() string {
	switch k {
	case KindF32:
		return "float32"
	case KindF64:
		return "float64"
	case KindU8:
		return "uint8"
	case KindU16:
		return "uint16"
	case KindU32:
		return "uint32"
	case KindU64:
		return "uint64"
	default:
		return fmt.Sprintf("Kind(%d)", uint8(k))
	}
}

// Width is the encoded size of the kind in bytes.
func (k Kind) Width() int {
	switch k {
	case KindU8:
		return 1
	case KindU16:
		return 2
	case KindF32, KindU32:
		return 4
	case KindF64, KindU64:
		return 8
	default:
		return 0
	}
}

// ByteOrder is the DATA byte order declared by $BYTEORD.
type ByteOrder uint8

const (
	LittleEndian ByteOrder = iota + 1
	BigEndian
)

func (o ByteOrder) String() string {
	switch o {
	case LittleEndian:
		return "little-endian"
	case BigEndian:
		return "big-endian"
	default:
		return fmt.Sprintf("ByteOrder(%d)", uint8(o))
	}
}

// nativeOrder reports the byte order of the running machine.
func nativeOrder() ByteOrder {
	if binary.NativeEndian.Uint16([]byte{0x01, 0x00}) == 1 {
		return LittleEndian
	}
	return BigEndian
}

// parseByteOrder maps the four accepted $BYTEORD spellings.
func parseByteOrder(s string) (ByteOrder, bool) {
	switch s {
	case "1,2,3,4", "1,2":
		return LittleEndian, true
	case "4,3,2,1", "2,1":
		return BigEndian, true
	}
	return 0, false
}

// Layout is the resolved encoding of one channel, computed once and shared by
// both decode paths.
type Layout struct {
	Kind  Kind
	Order ByteOrder
}

func (l Layout) String() string { return l.Kind.String() + "/" + l.Order.String() }

// layoutFor resolves $DATATYPE and a channel bit width into a Layout.
func layoutFor(dataType string, bits int, order ByteOrder) (Layout, error) {
	if bits <= 0 || bits%8 != 0 {
		return Layout{}, fmt.Errorf("%w: bit width %d is not a positive multiple of 8", ErrUnsupportedFeature, bits)
	}
	var k Kind
	switch dataType {
	case "F":
		if bits != 32 {
			return Layout{}, fmt.Errorf("%w: $DATATYPE F with %d bits", ErrUnsupportedFeature, bits)
		}
		k = KindF32
	case "D":
		if bits != 64 {
			return Layout{}, fmt.Errorf("%w: $DATATYPE D with %d bits", ErrUnsupportedFeature, bits)
		}
		k = KindF64
	case "I":
		switch bits {
		case 8:
			k = KindU8
		case 16:
			k = KindU16
		case 32:
			k = KindU32
		case 64:
			k = KindU64
		default:
			return Layout{}, fmt.Errorf("%w: $DATATYPE I with %d bits", ErrUnsupportedFeature, bits)
		}
	default:
		return Layout{}, fmt.Errorf("%w: $DATATYPE %q", ErrUnsupportedFeature, dataType)
	}
	return Layout{Kind: k, Order: order}, nil
}

// nativeValue interprets b, already in native byte order, as one scalar.
func (l Layout) nativeValue(b []byte) float64 {
	switch l.Kind {
	case KindF32:
		return float64(math.Float32frombits(binary.NativeEndian.Uint32(b)))
	case KindF64:
		return math.Float64frombits(binary.NativeEndian.Uint64(b))
	case KindU8:
		return float64(b[0])
	case KindU16:
		return float64(binary.NativeEndian.Uint16(b))
	case KindU32:
		return float64(binary.NativeEndian.Uint32(b))
	case KindU64:
		return float64(binary.NativeEndian.Uint64(b))
	}
	return math.NaN()
}

// swapInPlace reverses every width-sized word of buf.
func swapInPlace(buf []byte, width int) {
	if width < 2 {
		return
	}
	for off := 0; off+width <= len(buf); off += width {
		w := buf[off : off+width]
		for i, j := 0, width-1; i < j; i, j = i+1, j-1 {
			w[i], w[j] = w[j], w[i]
		}
	}
}
