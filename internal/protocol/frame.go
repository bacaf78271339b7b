package protocol

import (
	"bufio"
	"bytes"
	"errors"
	"io"

	"github.com/codefionn/langsock/internal/consts"
)

// FrameReader splits a byte stream into delimiter-terminated frames. Frames
// may arrive split across any number of reads.
type FrameReader struct {
	r          *bufio.Reader
	maxSize    int
	buf        []byte
	discarding bool
}

// NewFrameReader creates a FrameReader. A maxSize <= 0 uses the default limit.
func NewFrameReader(r io.Reader, maxSize int) *FrameReader {
	if maxSize <= 0 {
		maxSize = consts.DefaultMaxFrameSize
	}
	return &FrameReader{
		r:       bufio.NewReaderSize(r, consts.BufferSize64KB),
		maxSize: maxSize,
	}
}

// MaxSize returns the frame size limit.
func (fr *FrameReader) MaxSize() int {
	return fr.maxSize
}

// ReadFrame returns the next non-empty frame without its delimiter. The
// returned slice is owned by the caller.
//
// A frame longer than the limit yields a *FrameTooLargeError once its
// delimiter has been consumed; the next call continues with the following
// frame. A clean close between frames returns io.EOF, a close in the middle
// of a frame returns io.ErrUnexpectedEOF.
func (fr *FrameReader) ReadFrame() ([]byte, error) {
	for {
		chunk, err := fr.r.ReadSlice(Delimiter)
		if err != nil && !errors.Is(err, bufio.ErrBufferFull) {
			pending := len(fr.buf) > 0 || len(chunk) > 0 || fr.discarding
			fr.buf = fr.buf[:0]
			fr.discarding = false
			if errors.Is(err, io.EOF) {
				if pending {
					return nil, io.ErrUnexpectedEOF
				}
				return nil, io.EOF
			}
			return nil, err
		}

		if !fr.discarding {
			fr.buf = append(fr.buf, chunk...)
			if len(fr.buf) > fr.maxSize+1 {
				fr.discarding = true
				fr.buf = fr.buf[:0]
			}
		}

		if err != nil {
			// Buffer full, keep reading the same frame.
			continue
		}

		if fr.discarding {
			fr.discarding = false
			return nil, &FrameTooLargeError{Limit: fr.maxSize}
		}

		frame := bytes.TrimRight(fr.buf, "\r\n")
		fr.buf = fr.buf[:0]
		if len(bytes.TrimSpace(frame)) == 0 {
			continue
		}
		if len(frame) > fr.maxSize {
			return nil, &FrameTooLargeError{Limit: fr.maxSize}
		}

		out := make([]byte, len(frame))
		copy(out, frame)
		return out, nil
	}
}
