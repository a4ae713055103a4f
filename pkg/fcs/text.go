package fcs

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/kaitai-io/kaitai_struct_go_runtime/kaitai"
	"golang.org/x/text/encoding/charmap"
)

// Metadata is the TEXT segment. Standard keywords consumed by the decoder are
// typed fields; every keyword, standard or not, stays reachable through Get
// in file order. Extra holds the keywords the decoder never interprets.
type Metadata struct {
	Par       int
	Tot       int
	NextData  int
	ByteOrd   string
	DataType  string
	Mode      string
	ZeroBased bool // channels are numbered from $P0 instead of $P1

	Extra map[string]string

	delimiter rune
	keys      []string
	values    map[string]string
	bits      map[int]int
}

// Get returns the raw value of a keyword. Keywords are upper case.
func (m *Metadata) Get(key string) (string, bool) {
	v, ok := m.values[strings.ToUpper(key)]
	return v, ok
}

// Keys returns all keywords in the order they first appear in the file.
func (m *Metadata) Keys() []string {
	out := make([]string, len(m.keys))
	copy(out, m.keys)
	return out
}

// Delimiter is the TEXT delimiter character.
func (m *Metadata) Delimiter() rune { return m.delimiter }

// ChannelIndexes lists the $Pn indexes in file order: 0..$PAR-1 when the file
// carries $P0B, 1..$PAR otherwise.
func (m *Metadata) ChannelIndexes() []int {
	first := 1
	if m.ZeroBased {
		first = 0
	}
	idx := make([]int, m.Par)
	for i := range idx {
		idx[i] = first + i
	}
	return idx
}

// Bits returns the normalized $PnB for channel n.
func (m *Metadata) Bits(n int) (int, bool) {
	b, ok := m.bits[n]
	return b, ok
}

type textOptions struct {
	strict  bool
	escapes bool
}

// readText extracts and parses the inclusive TEXT byte range.
func readText(stream *kaitai.Stream, h Header, path string, opts textOptions) (*Metadata, error) {
	size, err := stream.Size()
	if err != nil {
		return nil, newParseError(path, SegmentText, h.TextStart, ErrCorruptHeader, "size: %v", err)
	}
	if h.TextEnd >= size {
		return nil, newParseError(path, SegmentText, h.TextStart, ErrCorruptHeader,
			"TEXT segment [%d, %d] extends past end of file (%d bytes)", h.TextStart, h.TextEnd, size)
	}
	if _, err := stream.Seek(h.TextStart, io.SeekStart); err != nil {
		return nil, newParseError(path, SegmentText, h.TextStart, ErrCorruptHeader, "seek: %v", err)
	}
	raw, err := stream.ReadBytes(int(h.TextEnd - h.TextStart + 1))
	if err != nil {
		return nil, newParseError(path, SegmentText, h.TextStart, ErrCorruptHeader, "read: %v", err)
	}
	text, err := kaitai.BytesToStr(raw, charmap.ISO8859_1.NewDecoder())
	if err != nil {
		return nil, newParseError(path, SegmentText, h.TextStart, ErrMalformedTextSegment, "decode Latin-1: %v", err)
	}

	meta, err := parseText(text, opts)
	if err != nil {
		return nil, &ParseError{Path: path, Segment: SegmentText, Offset: h.TextStart, Err: err}
	}
	return meta, nil
}

// parseText splits a decoded TEXT segment into keywords and normalizes the
// integer-valued standard keywords.
func parseText(text string, opts textOptions) (*Metadata, error) {
	if text == "" {
		return nil, fmt.Errorf("%w: empty segment", ErrMalformedTextSegment)
	}
	delim, _ := utf8.DecodeRuneInString(text)
	last, _ := utf8.DecodeLastRuneInString(text)
	if last != delim {
		text = strings.TrimRightFunc(text, unicode.IsSpace)
		last, _ = utf8.DecodeLastRuneInString(text)
		if last != delim {
			return nil, fmt.Errorf("%w: segment starts with delimiter %q but ends with %q", ErrMalformedTextSegment, delim, last)
		}
	}
	dl := utf8.RuneLen(delim)
	if len(text) < 2*dl {
		return nil, fmt.Errorf("%w: segment holds only a delimiter", ErrMalformedTextSegment)
	}
	body := text[dl : len(text)-dl]

	var tokens []string
	if opts.escapes {
		tokens = splitEscaped(body, delim)
	} else {
		tokens = strings.Split(body, string(delim))
	}
	if len(tokens)%2 != 0 {
		return nil, fmt.Errorf("%w: odd number of tokens (%d)", ErrMalformedTextSegment, len(tokens))
	}

	m := &Metadata{
		delimiter: delim,
		values:    make(map[string]string, len(tokens)/2),
		bits:      make(map[int]int),
		Extra:     make(map[string]string),
	}
	for i := 0; i < len(tokens); i += 2 {
		key := strings.ToUpper(strings.TrimSpace(tokens[i]))
		if _, dup := m.values[key]; dup {
			if opts.strict {
				return nil, fmt.Errorf("%w: duplicate keyword %q", ErrMalformedTextSegment, key)
			}
		} else {
			m.keys = append(m.keys, key)
		}
		m.values[key] = tokens[i+1]
	}

	if err := m.normalize(); err != nil {
		return nil, err
	}
	return m, nil
}

// splitEscaped splits on delim, treating a doubled delimiter as one literal
// delimiter character.
func splitEscaped(body string, delim rune) []string {
	var (
		tokens []string
		cur    strings.Builder
	)
	runes := []rune(body)
	for i := 0; i < len(runes); i++ {
		if runes[i] != delim {
			cur.WriteRune(runes[i])
			continue
		}
		if i+1 < len(runes) && runes[i+1] == delim {
			cur.WriteRune(delim)
			i++
			continue
		}
		tokens = append(tokens, cur.String())
		cur.Reset()
	}
	return append(tokens, cur.String())
}

var typedKeys = map[string]bool{
	"$PAR": true, "$TOT": true, "$NEXTDATA": true,
	"$BYTEORD": true, "$DATATYPE": true, "$MODE": true,
}

func (m *Metadata) normalize() error {
	var err error
	if m.Par, err = m.requireInt("$PAR"); err != nil {
		return err
	}
	if m.Par < 0 {
		return fmt.Errorf("%w: $PAR is negative (%d)", ErrMetadataType, m.Par)
	}
	// Every channel needs its own $PnB keyword.
	if m.Par > len(m.keys) {
		return fmt.Errorf("%w: $PAR = %d exceeds the %d keywords in TEXT", ErrMetadataType, m.Par, len(m.keys))
	}
	if m.Tot, err = m.requireInt("$TOT"); err != nil {
		return err
	}
	if m.Tot < 0 {
		return fmt.Errorf("%w: $TOT is negative (%d)", ErrMetadataType, m.Tot)
	}
	if _, ok := m.values["$NEXTDATA"]; ok {
		if m.NextData, err = m.requireInt("$NEXTDATA"); err != nil {
			return err
		}
	}
	m.ByteOrd = strings.TrimSpace(m.values["$BYTEORD"])
	m.DataType = strings.ToUpper(strings.TrimSpace(m.values["$DATATYPE"]))
	m.Mode = strings.ToUpper(strings.TrimSpace(m.values["$MODE"]))

	// $P0B decides the numbering before any $Pn keyword is read.
	_, m.ZeroBased = m.values["$P0B"]

	consumed := make(map[string]bool, 4*m.Par)
	for _, n := range m.ChannelIndexes() {
		key := fmt.Sprintf("$P%dB", n)
		b, err := m.requireInt(key)
		if err != nil {
			return err
		}
		m.bits[n] = b
		for _, suffix := range []string{"B", "N", "S", "R"} {
			consumed[fmt.Sprintf("$P%d%s", n, suffix)] = true
		}
	}

	for _, k := range m.keys {
		if !typedKeys[k] && !consumed[k] {
			m.Extra[k] = m.values[k]
		}
	}
	return nil
}

func (m *Metadata) requireInt(key string) (int, error) {
	raw, ok := m.values[key]
	if !ok {
		return 0, fmt.Errorf("%w: required keyword %s is missing", ErrMetadataType, key)
	}
	v, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("%w: %s = %q is not an integer", ErrMetadataType, key, raw)
	}
	return v, nil
}
