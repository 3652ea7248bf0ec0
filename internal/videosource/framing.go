// framing.go: splits the ffmpeg image2pipe byte stream into JPEG records.
package videosource

import (
	"bufio"
	"bytes"
	"io"
)

// JPEG stream markers. ffmpeg's image2pipe muxer emits back-to-back JPEG
// files, so SOI/EOI scanning is enough to recover record boundaries.
var (
	jpegSOI = []byte{0xFF, 0xD8}
	jpegEOI = []byte{0xFF, 0xD9}
)

// maxRecordSize caps a single JPEG record. A frame larger than this means the
// stream is corrupt and resynchronization starts at the next SOI.
const maxRecordSize = 8 << 20

// jpegScanner extracts complete JPEG records from a continuous byte stream.
type jpegScanner struct {
	r   *bufio.Reader
	buf bytes.Buffer
}

func newJPEGScanner(r io.Reader) *jpegScanner {
	return &jpegScanner{r: bufio.NewReaderSize(r, 256<<10)}
}

// Next returns the next complete JPEG record, discarding any bytes before the
// start-of-image marker. It returns the reader's error once the stream ends.
func (s *jpegScanner) Next() ([]byte, error) {
	if err := s.syncToSOI(); err != nil {
		return nil, err
	}

	s.buf.Reset()
	s.buf.Write(jpegSOI)

	var prev byte
	for {
		b, err := s.r.ReadByte()
		if err != nil {
			return nil, err
		}
		s.buf.WriteByte(b)
		if prev == 0xFF && b == 0xD9 {
			record := make([]byte, s.buf.Len())
			copy(record, s.buf.Bytes())
			return record, nil
		}
		if s.buf.Len() > maxRecordSize {
			// Lost framing. Drop the partial record and resync.
			s.buf.Reset()
			if err := s.syncToSOI(); err != nil {
				return nil, err
			}
			s.buf.Write(jpegSOI)
			prev = 0
			continue
		}
		prev = b
	}
}

// syncToSOI consumes bytes until a start-of-image marker has been read.
func (s *jpegScanner) syncToSOI() error {
	var prev byte
	for {
		b, err := s.r.ReadByte()
		if err != nil {
			return err
		}
		if prev == 0xFF && b == 0xD8 {
			return nil
		}
		prev = b
	}
}
