package fcs

import (
	"bytes"
	"errors"
	"fmt"
	"os"

	"github.com/edsrzf/mmap-go"
	"github.com/kaitai-io/kaitai_struct_go_runtime/kaitai"
)

// byteSource is one open FCS byte range plus its release hook.
type byteSource struct {
	path    string
	data    []byte
	release func() error
}

func (s *byteSource) stream() *kaitai.Stream {
	return kaitai.NewStream(bytes.NewReader(s.data))
}

func (s *byteSource) Close() error {
	if s.release == nil {
		return nil
	}
	err := s.release()
	s.release = nil
	return err
}

// opener opens a fresh byteSource; ParsedFile keeps one for lazy DATA reads.
type opener func() (*byteSource, error)

func bytesOpener(data []byte) opener {
	return func() (*byteSource, error) {
		return &byteSource{data: data}, nil
	}
}

// fileOpener maps the file read-only. The mapping and the descriptor are
// released by Close.
func fileOpener(path string) opener {
	return func() (*byteSource, error) {
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		st, err := f.Stat()
		if err != nil {
			f.Close()
			return nil, err
		}
		if st.Size() == 0 {
			f.Close()
			return nil, newParseError(path, SegmentHeader, 0, ErrCorruptHeader, "file is empty")
		}
		m, err := mmap.Map(f, mmap.RDONLY, 0)
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("mmap %s: %w", path, err)
		}
		return &byteSource{
			path: path,
			data: m,
			release: func() error {
				return errors.Join(m.Unmap(), f.Close())
			},
		}, nil
	}
}
