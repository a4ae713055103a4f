package fcs

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twinfer/fcs-plugin/testutil"
)

func TestDecode_MinimalFloatFile(t *testing.T) {
	f := testutil.File{
		DataType: "F",
		ByteOrd:  "1,2,3,4",
		Channels: []testutil.Channel{{N: "A", Bits: 32}, {N: "B", Bits: 32}},
		Events:   [][]float64{{1, 2}, {3, 4}, {5, 6}},
	}
	raw := f.Bytes()
	require.Len(t, f.Data(), 24)

	pf, err := Parse(context.Background(), raw)
	require.NoError(t, err)
	assert.Equal(t, [][]float64{{1, 2}, {3, 4}, {5, 6}}, pf.Events.Matrix())
	assert.Equal(t, []string{"A", "B"}, pf.Events.Names())
}

func TestDecode_RoundTrip(t *testing.T) {
	floats := [][]float64{
		{0, math.Copysign(0, -1), 1.5},
		{math.MaxFloat32, -math.SmallestNonzeroFloat32, 1e-3},
		{math.Inf(1), math.Inf(-1), 42},
	}
	doubles := [][]float64{
		{math.MaxFloat64, -math.SmallestNonzeroFloat64, math.Pi},
		{math.Copysign(0, -1), 1e300, -2.5},
	}
	ints := [][]float64{
		{0, 65535, 12345},
		{1, 256, 32768},
	}

	tests := []struct {
		name     string
		dataType string
		bits     int
		byteOrd  string
		events   [][]float64
	}{
		{"float32 little", "F", 32, "1,2,3,4", floats},
		{"float32 big", "F", 32, "4,3,2,1", floats},
		{"float64 little", "D", 64, "1,2,3,4", doubles},
		{"float64 big", "D", 64, "4,3,2,1", doubles},
		{"uint16 little", "I", 16, "1,2", ints},
		{"uint16 big", "I", 16, "2,1", ints},
		{"uint32 big", "I", 32, "4,3,2,1", ints},
		{"uint64 little", "I", 64, "1,2,3,4", ints},
		{"uint8", "I", 8, "1,2,3,4", [][]float64{{0, 255, 7}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := testutil.File{
				DataType: tt.dataType,
				ByteOrd:  tt.byteOrd,
				Channels: []testutil.Channel{{N: "X", Bits: tt.bits}, {N: "Y", Bits: tt.bits}, {N: "Z", Bits: tt.bits}},
				Events:   tt.events,
			}
			pf, err := Parse(context.Background(), f.Bytes())
			require.NoError(t, err)

			want := tt.events
			if tt.dataType == "F" {
				want = make([][]float64, len(tt.events))
				for i, row := range tt.events {
					for _, v := range row {
						want[i] = append(want[i], float64(float32(v)))
					}
				}
			}
			if diff := cmp.Diff(want, pf.Events.Matrix(), testutil.BitwiseFloats); diff != "" {
				t.Errorf("decoded matrix mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestDecode_UniformAndMixedAgree(t *testing.T) {
	for _, byteOrd := range []string{"1,2,3,4", "4,3,2,1"} {
		f := testutil.File{
			DataType: "F",
			ByteOrd:  byteOrd,
			Channels: []testutil.Channel{{N: "A", Bits: 32}, {N: "B", Bits: 32}, {N: "C", Bits: 32}},
			Events:   [][]float64{{1, -2, 3.25}, {1e6, 0.5, -7}, {9, 8, 7}, {math.NaN(), 1, 2}},
		}
		raw := f.Bytes()

		uniform, err := Parse(context.Background(), raw, WithDecodePath(PathUniform))
		require.NoError(t, err)
		mixed, err := Parse(context.Background(), raw, WithDecodePath(PathMixed))
		require.NoError(t, err)

		if diff := cmp.Diff(uniform.Events.Matrix(), mixed.Events.Matrix(), testutil.BitwiseFloats); diff != "" {
			t.Errorf("%s: uniform and mixed paths disagree (-uniform +mixed):\n%s", byteOrd, diff)
		}
	}
}

func TestDecode_MixedWidths(t *testing.T) {
	f := testutil.File{
		DataType: "I",
		ByteOrd:  "4,3,2,1",
		Channels: []testutil.Channel{{N: "time", Bits: 32}, {N: "FSC", Bits: 16}, {N: "flag", Bits: 8}},
		Events:   [][]float64{{100000, 1023, 1}, {100001, 0, 255}},
	}
	raw := f.Bytes()

	pf, err := Parse(context.Background(), raw)
	require.NoError(t, err)
	assert.Equal(t, [][]float64{{100000, 1023, 1}, {100001, 0, 255}}, pf.Events.Matrix())

	_, err = Parse(context.Background(), raw, WithDecodePath(PathUniform))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnsupportedFeature))
}

func TestDecode_Truncated(t *testing.T) {
	base := testutil.File{
		Channels: []testutil.Channel{{N: "A", Bits: 32}, {N: "B", Bits: 32}},
		Events:   [][]float64{{1, 2}, {3, 4}, {5, 6}},
	}

	t.Run("file shorter than DATA", func(t *testing.T) {
		f := base
		f.DataTrim = 3
		_, err := Parse(context.Background(), f.Bytes())
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrTruncatedData), "got %v", err)

		var pe *ParseError
		require.True(t, errors.As(err, &pe))
		assert.Equal(t, SegmentData, pe.Segment)
	})

	t.Run("TOT larger than DATA segment", func(t *testing.T) {
		f := base
		f.Tot = "4"
		_, err := Parse(context.Background(), f.Bytes())
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrTruncatedData), "got %v", err)
	})

	t.Run("mixed path", func(t *testing.T) {
		f := base
		f.DataTrim = 3
		_, err := Parse(context.Background(), f.Bytes(), WithDecodePath(PathMixed))
		assert.True(t, errors.Is(err, ErrTruncatedData), "got %v", err)
	})
}

func TestDecode_HugeTotIsTruncated(t *testing.T) {
	tests := []struct {
		name     string
		dataType string
		bits     int
		tot      string
		path     DecodePath
	}{
		{"float32 product wraps int64", "F", 32, "4611686018427387904", PathAuto},
		{"float64 product wraps to negative", "D", 64, "1152921504606846976", PathAuto},
		{"mixed path", "F", 32, "4611686018427387904", PathMixed},
		{"max int", "I", 8, "9223372036854775807", PathAuto},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := testutil.File{
				DataType: tt.dataType,
				Channels: []testutil.Channel{{N: "A", Bits: tt.bits}},
				Events:   [][]float64{{1}, {2}},
				Tot:      tt.tot,
			}
			var err error
			require.NotPanics(t, func() {
				_, err = Parse(context.Background(), f.Bytes(), WithDecodePath(tt.path))
			})
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrTruncatedData), "got %v", err)

			var pe *ParseError
			require.True(t, errors.As(err, &pe))
			assert.Equal(t, SegmentData, pe.Segment)
		})
	}
}

func TestDecode_ZeroEvents(t *testing.T) {
	f := testutil.File{Channels: []testutil.Channel{{N: "A", Bits: 32}}}
	pf, err := Parse(context.Background(), f.Bytes())
	require.NoError(t, err)
	assert.Equal(t, 0, pf.Events.Rows())
	assert.Equal(t, 1, pf.Events.Cols())
}

func TestDecode_InputNotModified(t *testing.T) {
	f := testutil.File{
		ByteOrd:  "4,3,2,1",
		Channels: []testutil.Channel{{N: "A", Bits: 32}},
		Events:   [][]float64{{1}, {2}},
	}
	raw := f.Bytes()
	orig := append([]byte(nil), raw...)

	first, err := Parse(context.Background(), raw)
	require.NoError(t, err)
	second, err := Parse(context.Background(), raw)
	require.NoError(t, err)

	assert.Equal(t, orig, raw)
	assert.Equal(t, first.Events.Matrix(), second.Events.Matrix())
	assert.Equal(t, [][]float64{{1}, {2}}, second.Events.Matrix())
}
