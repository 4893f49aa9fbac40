// Package durability implements append-only-log persistence (crash
// recovery between snapshots) and full-state JSON snapshots.
package durability

import (
	"encoding/binary"
	"hash/crc32"
	"io"
	"os"
	"sync"

	"github.com/kaelbridge/tridb/internal/corerr"
)

// frameHeaderLen is the fixed "u32 length, u32 crc32c(payload)" prefix on
// every AOF record.
const frameHeaderLen = 8

var castagnoliTable = crc32.MakeTable(crc32.Castagnoli)

// WriteFrame appends one length+checksum-framed record to w.
func WriteFrame(w io.Writer, payload []byte) error {
	var hdr [frameHeaderLen]byte
	binary.BigEndian.PutUint32(hdr[0:4], uint32(len(payload)))
	binary.BigEndian.PutUint32(hdr[4:8], crc32.Checksum(payload, castagnoliTable))
	if _, err := w.Write(hdr[:]); err != nil {
		return corerr.Wrap(corerr.ErrIO, "writing aof frame header: %v", err)
	}
	if _, err := w.Write(payload); err != nil {
		return corerr.Wrap(corerr.ErrIO, "writing aof frame payload: %v", err)
	}
	return nil
}

// ReadFrames replays every well-formed frame from r in order. It stops at
// the first short read or checksum mismatch, treating everything from that
// point on as an incompletely-written tail rather than failing the whole
// replay -- a process killed mid-append leaves exactly this shape on disk.
func ReadFrames(r io.Reader) ([][]byte, error) {
	var frames [][]byte
	for {
		var hdr [frameHeaderLen]byte
		if _, err := io.ReadFull(r, hdr[:]); err != nil {
			break
		}
		length := binary.BigEndian.Uint32(hdr[0:4])
		wantCRC := binary.BigEndian.Uint32(hdr[4:8])

		payload := make([]byte, length)
		if _, err := io.ReadFull(r, payload); err != nil {
			break
		}
		if crc32.Checksum(payload, castagnoliTable) != wantCRC {
			break
		}
		frames = append(frames, payload)
	}
	return frames, nil
}

// Writer is an append-only log file with a configurable fsync cadence.
type Writer struct {
	mu          sync.Mutex
	f           *os.File
	fsyncEveryN int
	sinceSync   int
}

// OpenWriter opens (creating if needed) the AOF file at path for appending.
// fsyncEveryN <= 1 fsyncs after every record; a larger value batches syncs,
// trading durability window for throughput.
func OpenWriter(path string, fsyncEveryN int) (*Writer, error) {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return nil, corerr.Wrap(corerr.ErrIO, "opening aof %q: %v", path, err)
	}
	if fsyncEveryN < 1 {
		fsyncEveryN = 1
	}
	return &Writer{f: f, fsyncEveryN: fsyncEveryN}, nil
}

// Append writes and (per the fsync cadence) flushes one record.
func (w *Writer) Append(payload []byte) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := WriteFrame(w.f, payload); err != nil {
		return err
	}
	w.sinceSync++
	if w.sinceSync >= w.fsyncEveryN {
		w.sinceSync = 0
		if err := w.f.Sync(); err != nil {
			return corerr.Wrap(corerr.ErrIO, "fsyncing aof: %v", err)
		}
	}
	return nil
}

// Close closes the underlying file.
func (w *Writer) Close() error { return w.f.Close() }

// Truncate resets the log to empty, used by REWRITEAOF before it writes
// the minimal set of records that reproduces the current state.
func (w *Writer) Truncate() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.f.Truncate(0); err != nil {
		return corerr.Wrap(corerr.ErrIO, "truncating aof: %v", err)
	}
	_, err := w.f.Seek(0, io.SeekStart)
	if err != nil {
		return corerr.Wrap(corerr.ErrIO, "seeking aof: %v", err)
	}
	return nil
}

// ReplayFile opens path read-only and returns its well-formed frames, or an
// empty result if the file doesn't exist yet.
func ReplayFile(path string) ([][]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, corerr.Wrap(corerr.ErrIO, "opening aof %q: %v", path, err)
	}
	defer f.Close()
	return ReadFrames(f)
}

// EncodeTuple renders a request tuple -- a leading database-name tag
// followed by the command's verb and arguments -- as a sequence of
// length-prefixed byte strings, the payload shape named in §6's on-disk
// layout.
func EncodeTuple(parts ...string) []byte {
	var buf []byte
	var lenBuf [4]byte
	for _, p := range parts {
		binary.BigEndian.PutUint32(lenBuf[:], uint32(len(p)))
		buf = append(buf, lenBuf[:]...)
		buf = append(buf, p...)
	}
	return buf
}

// DecodeTuple parses a payload built by EncodeTuple back into its parts.
func DecodeTuple(payload []byte) ([]string, error) {
	var parts []string
	for len(payload) > 0 {
		if len(payload) < 4 {
			return nil, corerr.Wrap(corerr.ErrCorruption, "truncated tuple length prefix")
		}
		n := binary.BigEndian.Uint32(payload[:4])
		payload = payload[4:]
		if uint64(len(payload)) < uint64(n) {
			return nil, corerr.Wrap(corerr.ErrCorruption, "truncated tuple field")
		}
		parts = append(parts, string(payload[:n]))
		payload = payload[n:]
	}
	return parts, nil
}
