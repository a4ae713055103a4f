// Package fcs decodes Flow Cytometry Standard (FCS) list-mode files into
// metadata and a dense event table.
//
// # Overview
//
// An FCS file is a fixed 58-byte HEADER followed by a delimited TEXT segment of
// keyword/value pairs and a binary DATA segment holding one record per event.
// The parser reads them strictly in that order:
//
//   - HEADER: version tag and the byte offsets of the other segments
//   - TEXT: keywords, with $PAR, $TOT, $NEXTDATA and $PnB read as integers
//   - channels: bit width, names and range for every $Pn
//   - validation: single dataset, list mode, a known $BYTEORD and $DATATYPE
//   - DATA: $TOT events of $PAR channels, corrected to native byte order
//
// # Quick Start
//
//	pf, err := fcs.ParseFile(ctx, "sample.fcs")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fsc, _ := pf.Events.Column("FSC-H")
//
// The flat form mirrors the classic keyword-map interface:
//
//	meta, events, err := fcs.ParseFCS("sample.fcs", false, fcs.NamingPnN)
//
// # Configuration Options
//
//   - WithChannelNaming(Naming): $PnS (default) or $PnN column names
//   - WithMetadataOnly(bool): stop before DATA; call ParsedFile.ReadData later
//   - WithStrictText(bool): reject repeated TEXT keywords
//   - WithDelimiterEscapes(bool): honour doubled delimiters inside values
//   - WithDecodePath(DecodePath): force the uniform or mixed DATA walk
//   - WithLogger(*slog.Logger): custom logging
//   - WithConcurrency(int): ParseFiles worker bound
//
// # Error Handling
//
// Fatal problems abort the whole file and match one of ErrCorruptHeader,
// ErrMalformedTextSegment, ErrMetadataType, ErrUnsupportedFeature or
// ErrTruncatedData under errors.Is. A *ParseError carries the path, segment
// and byte offset. Non-fatal findings (an ANALYSIS segment that is not
// decoded, a channel-name fallback) are returned in ParsedFile.Warnings.
//
// # Thread Safety
//
// A Parser holds no mutable state. Each ParsedFile is independent, so files
// may be parsed concurrently without locks; ParseFiles does exactly that.
package fcs
