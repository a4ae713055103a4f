package fcs

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/kaitai-io/kaitai_struct_go_runtime/kaitai"
)

// HEADER layout: 6-byte version tag, 4 filler bytes, six 8-byte ASCII offsets.
const (
	versionSize     = 6
	fillerSize      = 4
	offsetFieldSize = 8
	headerSize      = versionSize + fillerSize + 6*offsetFieldSize
)

// Header holds the segment offsets from the fixed-width preamble. Offsets are
// absolute and inclusive, as written in the file.
type Header struct {
	Version       string
	TextStart     int64
	TextEnd       int64
	DataStart     int64
	DataEnd       int64
	AnalysisStart int64
	AnalysisEnd   int64
}

// readHeader reads the HEADER from the start of stream.
func readHeader(stream *kaitai.Stream, path string) (Header, []Warning, error) {
	var h Header
	if _, err := stream.Seek(0, io.SeekStart); err != nil {
		return h, nil, newParseError(path, SegmentHeader, 0, ErrCorruptHeader, "seek: %v", err)
	}
	if size, err := stream.Size(); err == nil && size < headerSize {
		return h, nil, newParseError(path, SegmentHeader, 0, ErrCorruptHeader, "file is %d bytes, header needs %d", size, headerSize)
	}

	tag, err := stream.ReadBytes(versionSize)
	if err != nil {
		return h, nil, newParseError(path, SegmentHeader, 0, ErrCorruptHeader, "read version: %v", err)
	}
	h.Version = string(tag)
	if !strings.HasPrefix(h.Version, "FCS") {
		return h, nil, newParseError(path, SegmentHeader, 0, ErrCorruptHeader, "bad version tag %q -- not an FCS file", h.Version)
	}
	if _, err := stream.ReadBytes(fillerSize); err != nil {
		return h, nil, newParseError(path, SegmentHeader, versionSize, ErrCorruptHeader, "read filler: %v", err)
	}

	fields := []*int64{&h.TextStart, &h.TextEnd, &h.DataStart, &h.DataEnd, &h.AnalysisStart, &h.AnalysisEnd}
	for i, dst := range fields {
		raw, err := stream.ReadBytes(offsetFieldSize)
		if err != nil {
			off := int64(versionSize + fillerSize + i*offsetFieldSize)
			return h, nil, newParseError(path, SegmentHeader, off, ErrCorruptHeader, "read offset field %d: %v", i, err)
		}
		*dst = parseOffsetField(raw)
	}

	if h.TextStart == 0 || h.TextEnd == 0 {
		return h, nil, newParseError(path, SegmentHeader, versionSize+fillerSize, ErrCorruptHeader,
			"TEXT offsets [%d, %d] must be non-zero", h.TextStart, h.TextEnd)
	}
	if h.DataStart == 0 || h.DataEnd == 0 {
		return h, nil, newParseError(path, SegmentHeader, versionSize+fillerSize+2*offsetFieldSize, ErrCorruptHeader,
			"DATA offsets [%d, %d] must be non-zero (offsets stored in TEXT are not supported)", h.DataStart, h.DataEnd)
	}
	if h.TextEnd < h.TextStart {
		return h, nil, newParseError(path, SegmentHeader, versionSize+fillerSize, ErrCorruptHeader,
			"TEXT end %d precedes start %d", h.TextEnd, h.TextStart)
	}

	var warnings []Warning
	if h.AnalysisStart != 0 {
		warnings = append(warnings, Warning{
			Kind:    WarnAnalysisSegmentPresent,
			Message: fmt.Sprintf("ANALYSIS segment at [%d, %d] is not decoded", h.AnalysisStart, h.AnalysisEnd),
		})
	}
	return h, warnings, nil
}

// parseOffsetField reads one space-padded ASCII integer. Anything that does
// not parse as a non-negative integer reads as 0.
func parseOffsetField(raw []byte) int64 {
	v, err := strconv.ParseInt(strings.TrimSpace(string(raw)), 10, 64)
	if err != nil || v < 0 {
		return 0
	}
	return v
}
