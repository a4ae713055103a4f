package fcs

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twinfer/fcs-plugin/testutil"
)

func TestParseText(t *testing.T) {
	m, err := parseText("/$PAR/2/$TOT/3/$P1B/32/$P2B/16/$BYTEORD/1,2,3,4/$DATATYPE/f/$MODE/L/$NEXTDATA/0/$FIL/a.fcs/CYTEK_X/7/", textOptions{})
	require.NoError(t, err)

	assert.Equal(t, '/', m.Delimiter())
	assert.Equal(t, 2, m.Par)
	assert.Equal(t, 3, m.Tot)
	assert.Equal(t, 0, m.NextData)
	assert.Equal(t, "1,2,3,4", m.ByteOrd)
	assert.Equal(t, "F", m.DataType)
	assert.Equal(t, "L", m.Mode)
	assert.False(t, m.ZeroBased)
	assert.Equal(t, []int{1, 2}, m.ChannelIndexes())

	b, ok := m.Bits(2)
	require.True(t, ok)
	assert.Equal(t, 16, b)

	assert.Equal(t, []string{"$PAR", "$TOT", "$P1B", "$P2B", "$BYTEORD", "$DATATYPE", "$MODE", "$NEXTDATA", "$FIL", "CYTEK_X"}, m.Keys())
	assert.Equal(t, map[string]string{"$FIL": "a.fcs", "CYTEK_X": "7"}, m.Extra)
}

func TestParseText_Quirks(t *testing.T) {
	t.Run("trailing whitespace after closing delimiter", func(t *testing.T) {
		m, err := parseText("/$PAR/1/$TOT/0/$P1B/8/  \r\n", textOptions{})
		require.NoError(t, err)
		assert.Equal(t, 1, m.Par)
	})

	t.Run("keywords are case-insensitive", func(t *testing.T) {
		m, err := parseText("/$par/1/$Tot/0/$p1b/8/$p1n/fsc/", textOptions{})
		require.NoError(t, err)
		v, ok := m.Get("$P1N")
		require.True(t, ok)
		assert.Equal(t, "fsc", v)
		v, ok = m.Get("$p1n")
		require.True(t, ok)
		assert.Equal(t, "fsc", v)
	})

	t.Run("duplicate keyword keeps last value", func(t *testing.T) {
		m, err := parseText("/$PAR/1/$TOT/0/$P1B/8/$SRC/a/$SRC/b/", textOptions{})
		require.NoError(t, err)
		v, _ := m.Get("$SRC")
		assert.Equal(t, "b", v)
		assert.Equal(t, []string{"$PAR", "$TOT", "$P1B", "$SRC"}, m.Keys())
	})

	t.Run("zero-based channel numbering", func(t *testing.T) {
		m, err := parseText("/$PAR/2/$TOT/0/$P0B/8/$P1B/16/", textOptions{})
		require.NoError(t, err)
		assert.True(t, m.ZeroBased)
		assert.Equal(t, []int{0, 1}, m.ChannelIndexes())
		b, _ := m.Bits(0)
		assert.Equal(t, 8, b)
	})

	t.Run("form feed delimiter", func(t *testing.T) {
		m, err := parseText("\f$PAR\f1\f$TOT\f4\f$P1B\f16\f", textOptions{})
		require.NoError(t, err)
		assert.Equal(t, '\f', m.Delimiter())
		assert.Equal(t, 4, m.Tot)
	})

	t.Run("escaped delimiter", func(t *testing.T) {
		m, err := parseText("/$PAR/1/$TOT/0/$P1B/8/$P1S/CD4//CD8/", textOptions{escapes: true})
		require.NoError(t, err)
		v, _ := m.Get("$P1S")
		assert.Equal(t, "CD4/CD8", v)
	})

	t.Run("missing NEXTDATA reads as zero", func(t *testing.T) {
		m, err := parseText("/$PAR/1/$TOT/0/$P1B/8/", textOptions{})
		require.NoError(t, err)
		assert.Zero(t, m.NextData)
	})
}

func TestParseText_Errors(t *testing.T) {
	tests := []struct {
		name string
		text string
		opts textOptions
		want error
	}{
		{"empty", "", textOptions{}, ErrMalformedTextSegment},
		{"only delimiter", "/", textOptions{}, ErrMalformedTextSegment},
		{"missing closing delimiter", "/$PAR/1/$TOT/0/$P1B/8", textOptions{}, ErrMalformedTextSegment},
		{"closing delimiter differs", "/$PAR/1/$TOT/0/$P1B/8|", textOptions{}, ErrMalformedTextSegment},
		{"odd token count", "/$PAR/1/$TOT/0/$P1B/", textOptions{}, ErrMalformedTextSegment},
		{"strict duplicate", "/$PAR/1/$TOT/0/$P1B/8/$TOT/1/", textOptions{strict: true}, ErrMalformedTextSegment},
		{"non-numeric PAR", "/$PAR/two/$TOT/0/", textOptions{}, ErrMetadataType},
		{"non-numeric TOT", "/$PAR/1/$TOT/many/$P1B/8/", textOptions{}, ErrMetadataType},
		{"non-numeric NEXTDATA", "/$PAR/1/$TOT/0/$P1B/8/$NEXTDATA/x/", textOptions{}, ErrMetadataType},
		{"non-numeric PnB", "/$PAR/1/$TOT/0/$P1B/*/", textOptions{}, ErrMetadataType},
		{"missing PnB", "/$PAR/2/$TOT/0/$P1B/8/", textOptions{}, ErrMetadataType},
		{"missing PAR", "/$TOT/0/", textOptions{}, ErrMetadataType},
		{"negative TOT", "/$PAR/0/$TOT/-1/", textOptions{}, ErrMetadataType},
		{"PAR beyond keyword count", "/$PAR/999999999999/$TOT/0/$P1B/8/", textOptions{}, ErrMetadataType},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := parseText(tt.text, tt.opts)
			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.want), "got %v", err)
		})
	}
}

func TestReadText_Latin1(t *testing.T) {
	f := oneChannel
	f.Keywords = [][2]string{{"$COM", "beads 3µm, Zürich"}}
	raw := f.Bytes()

	h, _, err := readHeader(newStream(raw), "")
	require.NoError(t, err)
	m, err := readText(newStream(raw), h, "", textOptions{})
	require.NoError(t, err)

	v, ok := m.Get("$COM")
	require.True(t, ok)
	assert.Equal(t, "beads 3µm, Zürich", v)
}

func TestReadText_RangePastEOF(t *testing.T) {
	raw := oneChannel.Bytes()
	h, _, err := readHeader(newStream(raw), "")
	require.NoError(t, err)

	h.TextEnd = int64(len(raw)) + 10
	_, err = readText(newStream(raw), h, "x.fcs", textOptions{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrCorruptHeader))
}

func TestReadText_ErrorCarriesOffset(t *testing.T) {
	f := testutil.File{
		Channels: []testutil.Channel{{N: "A", Bits: 32}},
		Keywords: [][2]string{{"$TOT", "lots"}},
	}
	raw := f.Bytes()
	h, _, err := readHeader(newStream(raw), "")
	require.NoError(t, err)

	_, err = readText(newStream(raw), h, "bad.fcs", textOptions{})
	var pe *ParseError
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, SegmentText, pe.Segment)
	assert.Equal(t, h.TextStart, pe.Offset)
	assert.Contains(t, pe.Error(), "bad.fcs")
	assert.True(t, errors.Is(err, ErrMetadataType))
}
