package testutil

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/text/encoding/charmap"
)

// Channel is one $Pn parameter of a synthetic file. Empty names are omitted
// from TEXT.
type Channel struct {
	N     string
	S     string
	Bits  int
	Range string
}

// File describes a synthetic FCS file. Zero values pick FCS3.0, '/', F,
// "1,2,3,4", L and $NEXTDATA 0. The encoder exists for tests only.
type File struct {
	Version   string
	Delimiter byte
	DataType  string
	ByteOrd   string
	Mode      string
	NextData  string
	Tot       string // overrides the event count written to $TOT
	ZeroBased bool   // number channels $P0.. instead of $P1..
	Channels  []Channel
	Events    [][]float64

	// Keywords are written after the standard ones, so a repeated standard
	// keyword here overrides it under last-wins parsing.
	Keywords [][2]string
	// Omit drops standard keywords from TEXT.
	Omit []string
	// Analysis is appended after DATA and announced in the header.
	Analysis []byte
	// TextTrailer is written after the closing delimiter inside the TEXT range.
	TextTrailer string
	// DataTrim cuts bytes off the end of the file while the header still
	// claims the full DATA range.
	DataTrim int
	// HeaderFields replaces the six offset fields verbatim when set.
	HeaderFields *[6]string
}

func (f File) withDefaults() File {
	if f.Version == "" {
		f.Version = "FCS3.0"
	}
	if f.Delimiter == 0 {
		f.Delimiter = '/'
	}
	if f.DataType == "" {
		f.DataType = "F"
	}
	if f.ByteOrd == "" {
		f.ByteOrd = "1,2,3,4"
	}
	if f.Mode == "" {
		f.Mode = "L"
	}
	if f.NextData == "" {
		f.NextData = "0"
	}
	if f.Tot == "" {
		f.Tot = strconv.Itoa(len(f.Events))
	}
	return f
}

// Text returns the TEXT segment bytes.
func (f File) Text() []byte {
	f = f.withDefaults()
	omit := make(map[string]bool, len(f.Omit))
	for _, k := range f.Omit {
		omit[k] = true
	}
	kv := [][2]string{
		{"$BYTEORD", f.ByteOrd},
		{"$DATATYPE", f.DataType},
		{"$MODE", f.Mode},
		{"$NEXTDATA", f.NextData},
		{"$PAR", strconv.Itoa(len(f.Channels))},
		{"$TOT", f.Tot},
	}
	for i, ch := range f.Channels {
		n := i + 1
		if f.ZeroBased {
			n = i
		}
		kv = append(kv, [2]string{fmt.Sprintf("$P%dB", n), strconv.Itoa(ch.Bits)})
		if ch.N != "" {
			kv = append(kv, [2]string{fmt.Sprintf("$P%dN", n), ch.N})
		}
		if ch.S != "" {
			kv = append(kv, [2]string{fmt.Sprintf("$P%dS", n), ch.S})
		}
		if ch.Range != "" {
			kv = append(kv, [2]string{fmt.Sprintf("$P%dR", n), ch.Range})
		}
	}
	kv = append(kv, f.Keywords...)

	var buf bytes.Buffer
	d := string(f.Delimiter)
	buf.WriteString(d)
	for _, p := range kv {
		if omit[p[0]] {
			continue
		}
		buf.WriteString(p[0] + d + p[1] + d)
	}
	buf.WriteString(f.TextTrailer)
	latin1, err := charmap.ISO8859_1.NewEncoder().Bytes(buf.Bytes())
	if err != nil {
		panic(fmt.Sprintf("testutil: TEXT is not Latin-1: %v", err))
	}
	return latin1
}

// Data returns the DATA segment bytes.
func (f File) Data() []byte {
	f = f.withDefaults()
	var order binary.AppendByteOrder = binary.LittleEndian
	if f.ByteOrd == "4,3,2,1" || f.ByteOrd == "2,1" {
		order = binary.BigEndian
	}
	var buf []byte
	for _, ev := range f.Events {
		for c, v := range ev {
			buf = appendScalar(buf, order, f.DataType, f.Channels[c].Bits, v)
		}
	}
	return buf
}

func appendScalar(buf []byte, order binary.AppendByteOrder, dataType string, bits int, v float64) []byte {
	switch {
	case dataType == "F":
		return order.AppendUint32(buf, math.Float32bits(float32(v)))
	case dataType == "D":
		return order.AppendUint64(buf, math.Float64bits(v))
	case bits == 8:
		return append(buf, uint8(v))
	case bits == 16:
		return order.AppendUint16(buf, uint16(v))
	case bits == 32:
		return order.AppendUint32(buf, uint32(v))
	case bits == 64:
		return order.AppendUint64(buf, uint64(v))
	}
	panic(fmt.Sprintf("testutil: cannot encode %s with %d bits", dataType, bits))
}

// Bytes assembles HEADER, TEXT, DATA and the optional ANALYSIS segment.
func (f File) Bytes() []byte {
	f = f.withDefaults()
	text := f.Text()
	data := f.Data()

	const headerSize = 58
	textStart := int64(headerSize)
	textEnd := textStart + int64(len(text)) - 1
	dataStart := textEnd + 1
	dataEnd := dataStart + int64(len(data)) - 1
	if len(data) == 0 {
		dataEnd = dataStart
	}
	var anaStart, anaEnd int64
	if f.Analysis != nil {
		anaStart = dataStart + int64(len(data))
		anaEnd = anaStart + int64(len(f.Analysis)) - 1
	}

	fields := [6]string{}
	for i, v := range []int64{textStart, textEnd, dataStart, dataEnd, anaStart, anaEnd} {
		fields[i] = fmt.Sprintf("%8d", v)
	}
	if f.HeaderFields != nil {
		fields = *f.HeaderFields
	}

	var buf bytes.Buffer
	buf.WriteString(fmt.Sprintf("%-6s", f.Version)[:6])
	buf.WriteString("    ")
	for _, fld := range fields {
		buf.WriteString(fmt.Sprintf("%8s", fld)[:8])
	}
	buf.Write(text)
	buf.Write(data)
	buf.Write(f.Analysis)

	out := buf.Bytes()
	if f.DataTrim > 0 {
		out = out[:len(out)-len(f.Analysis)-f.DataTrim]
	}
	return out
}

// WriteFile writes the encoded file under t.TempDir and returns its path.
func (f File) WriteFile(t testing.TB, name string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	err := os.WriteFile(path, f.Bytes(), 0644)
	require.NoError(t, err)
	return path
}
