// Package sharedlog implements the checksummed append-only log used by
// the dependency-graph layer to persist shared state: a little-endian
// frame codec over a bounded LRU of open writer handles, with a
// background flusher and fatal-on-out-of-space durability semantics.
package sharedlog

import (
	"bufio"
	"encoding/binary"
	"hash/crc32"
	"io"

	"github.com/fora-lang/cumulus/pkg/errors"
)

// frameHeaderSize is the fixed-size prefix before the payload:
// u32 crc32 | u64 len.
const frameHeaderSize = 4 + 8

// writeFrame appends one frame — crc32(payload) | len(payload) | payload
// — to w. It never rewrites or truncates prior content.
func writeFrame(w io.Writer, payload []byte) error {
	var header [frameHeaderSize]byte
	binary.LittleEndian.PutUint32(header[0:4], crc32.ChecksumIEEE(payload))
	binary.LittleEndian.PutUint64(header[4:12], uint64(len(payload)))
	if _, err := w.Write(header[:]); err != nil {
		return err
	}
	_, err := w.Write(payload)
	return err
}

// readFrame reads one frame from r. It returns io.EOF only when no bytes
// of a new frame were read at all (a clean end of the valid prefix). A
// header that can't be fully read, or a length that would overrun the
// remaining bytes, or a CRC mismatch are all reported as
// errors.ErrRecoverableDataError — the caller stops replay at that point
// without rewriting the file.
func readFrame(r io.Reader) ([]byte, error) {
	var header [frameHeaderSize]byte
	n, err := io.ReadFull(r, header[:])
	if err != nil {
		if n == 0 && err == io.EOF {
			return nil, io.EOF
		}
		return nil, errors.Wrap(errors.CodeRecoverableDataErr, "sharedlog: truncated frame header", err)
	}

	wantCRC := binary.LittleEndian.Uint32(header[0:4])
	size := binary.LittleEndian.Uint64(header[4:12])

	payload := make([]byte, size)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, errors.Wrap(errors.CodeRecoverableDataErr, "sharedlog: truncated frame payload", err)
	}
	if got := crc32.ChecksumIEEE(payload); got != wantCRC {
		return nil, errors.Wrap(errors.CodeRecoverableDataErr, "sharedlog: frame checksum mismatch", nil)
	}
	return payload, nil
}

// readAllFrames reads frames from r until EOF or the first invalid
// frame, returning the validated prefix.
func readAllFrames(r io.Reader) ([][]byte, error) {
	br := bufio.NewReader(r)
	var out [][]byte
	for {
		payload, err := readFrame(br)
		if err == io.EOF {
			return out, nil
		}
		if err != nil {
			return out, nil // stop at the first corrupt/truncated frame; return what validated
		}
		out = append(out, payload)
	}
}
