// Package segment implements the on-disk frame record format shared by the
// segment sink (capture) and the file source (replay).
//
// record format: [8 bytes seq][4 bytes len][len bytes json]
package segment

import (
	"bufio"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/aleksanderbialka/bioscopeai-vision-streamer/internal/domain"
)

const recordHeaderLen = 12

// Writer appends frame records to a segment file. Opening an existing file
// truncates a partially written tail record so a crashed capture stays
// readable.
type Writer struct {
	mu        sync.Mutex
	path      string
	file      *os.File
	writer    *bufio.Writer
	sizeBytes int64
	lastSeq   uint64
	closed    bool
}

func OpenWriter(path string) (*Writer, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, err
	}

	w := &Writer{path: path, file: f}
	if err := w.scanExisting(); err != nil {
		f.Close()
		return nil, err
	}
	if _, err := f.Seek(0, io.SeekEnd); err != nil {
		f.Close()
		return nil, err
	}
	w.writer = bufio.NewWriterSize(f, 1<<20)
	return w, nil
}

// scanExisting walks the record stream to find the last complete record and
// truncates anything after it.
func (w *Writer) scanExisting() error {
	stat, err := w.file.Stat()
	if err != nil {
		return err
	}
	if stat.Size() == 0 {
		return nil
	}

	rf, err := os.Open(w.path)
	if err != nil {
		return err
	}
	defer rf.Close()

	reader := bufio.NewReader(rf)
	var offset int64

	for {
		var hdr [recordHeaderLen]byte
		if _, err := io.ReadFull(reader, hdr[:]); err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				break
			}
			return fmt.Errorf("segment scan header: %w", err)
		}
		seq := binary.BigEndian.Uint64(hdr[0:8])
		length := binary.BigEndian.Uint32(hdr[8:12])

		if length > 0 {
			if _, err := io.CopyN(io.Discard, reader, int64(length)); err != nil {
				if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
					break
				}
				return fmt.Errorf("segment scan body: %w", err)
			}
		}
		offset += recordHeaderLen + int64(length)
		w.lastSeq = seq
	}

	if err := w.file.Truncate(offset); err != nil {
		return err
	}
	w.sizeBytes = offset
	return nil
}

func (w *Writer) Append(f *domain.Frame) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return fmt.Errorf("segment writer closed")
	}

	b, err := json.Marshal(f)
	if err != nil {
		return err
	}

	var hdr [recordHeaderLen]byte
	binary.BigEndian.PutUint64(hdr[0:8], f.Seq)
	binary.BigEndian.PutUint32(hdr[8:12], uint32(len(b)))

	if _, err := w.writer.Write(hdr[:]); err != nil {
		return err
	}
	if _, err := w.writer.Write(b); err != nil {
		return err
	}

	w.lastSeq = f.Seq
	w.sizeBytes += int64(recordHeaderLen + len(b))
	return nil
}

func (w *Writer) Flush() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.writer.Flush()
}

func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil
	}
	w.closed = true
	if err := w.writer.Flush(); err != nil {
		w.file.Close()
		return err
	}
	return w.file.Close()
}

func (w *Writer) Size() int64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.sizeBytes
}

// Read iterates the complete records of a segment file in order. A truncated
// trailing record ends iteration without error; a corrupt body does not.
func Read(path string, fn func(f *domain.Frame) error) error {
	rf, err := os.Open(path)
	if err != nil {
		return err
	}
	defer rf.Close()

	reader := bufio.NewReader(rf)
	for {
		var hdr [recordHeaderLen]byte
		if _, err := io.ReadFull(reader, hdr[:]); err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				return nil
			}
			return err
		}
		length := binary.BigEndian.Uint32(hdr[8:12])

		b := make([]byte, length)
		if _, err := io.ReadFull(reader, b); err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				return nil
			}
			return err
		}

		var f domain.Frame
		if err := json.Unmarshal(b, &f); err != nil {
			return fmt.Errorf("corrupt segment record: %w", err)
		}
		if err := fn(&f); err != nil {
			return err
		}
	}
}
