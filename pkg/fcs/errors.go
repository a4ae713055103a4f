package fcs

import (
	"errors"
	"fmt"
)

// Sentinel errors for the fatal failure kinds. Match them with errors.Is;
// failures tied to a place in the file arrive wrapped in a *ParseError.
var (
	ErrCorruptHeader        = errors.New("corrupt header")
	ErrMalformedTextSegment = errors.New("malformed TEXT segment")
	ErrMetadataType         = errors.New("metadata type error")
	ErrUnsupportedFeature   = errors.New("unsupported feature")
	ErrTruncatedData        = errors.New("truncated DATA segment")

	errUnknownDecodePath    = errors.New("unknown decode path")
	errMetadataOnlyNoSource = errors.New("no byte source attached for lazy DATA read")
)

// Segment names the part of the file an error refers to.
type Segment string

const (
	SegmentHeader Segment = "HEADER"
	SegmentText   Segment = "TEXT"
	SegmentData   Segment = "DATA"
)

// ParseError carries the file and byte offset context for a failed parse.
type ParseError struct {
	Path    string // empty for in-memory sources
	Segment Segment
	Offset  int64 // absolute byte offset, -1 when not applicable
	Err     error
}

func (e *ParseError) Error() string {
	where := e.Path
	if where == "" {
		where = "<bytes>"
	}
	if e.Offset >= 0 {
		return fmt.Sprintf("%s: %s @%d: %v", where, e.Segment, e.Offset, e.Err)
	}
	return fmt.Sprintf("%s: %s: %v", where, e.Segment, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

func newParseError(path string, seg Segment, off int64, kind error, format string, a ...any) *ParseError {
	return &ParseError{
		Path:    path,
		Segment: seg,
		Offset:  off,
		Err:     fmt.Errorf("%w: %s", kind, fmt.Sprintf(format, a...)),
	}
}

// WarningKind identifies a non-fatal condition found during a parse.
type WarningKind string

const (
	WarnAnalysisSegmentPresent WarningKind = "ANALYSIS segment present"
	WarnDuplicateChannelNames  WarningKind = "channel-name fallback applied"
)

// Warning is an advisory signal returned alongside a fully valid result.
type Warning struct {
	Kind    WarningKind
	Message string
}

func (w Warning) String() string { return string(w.Kind) + ": " + w.Message }
