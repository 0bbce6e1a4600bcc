package segment

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/aleksanderbialka/bioscopeai-vision-streamer/internal/domain"
)

func TestWriterRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "capture.seg")

	w, err := OpenWriter(path)
	if err != nil {
		t.Fatalf("open writer: %v", err)
	}

	ts := time.Now().UTC().Truncate(time.Millisecond)
	for i := uint64(0); i < 3; i++ {
		f := &domain.Frame{
			Seq:       i,
			Timestamp: ts,
			Data:      []byte{byte(i), byte(i + 1)},
			Width:     2,
			Height:    1,
			Format:    domain.FormatRGB24,
		}
		if err := w.Append(f); err != nil {
			t.Fatalf("append %d: %v", i, err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	var got []*domain.Frame
	err = Read(path, func(f *domain.Frame) error {
		got = append(got, f)
		return nil
	})
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("expected 3 records, got %d", len(got))
	}
	for i, f := range got {
		if f.Seq != uint64(i) {
			t.Fatalf("record %d: seq %d", i, f.Seq)
		}
		if f.Width != 2 || f.Format != domain.FormatRGB24 {
			t.Fatalf("record %d metadata mismatch: %+v", i, f)
		}
		if len(f.Data) != 2 || f.Data[0] != byte(i) {
			t.Fatalf("record %d payload mismatch: %v", i, f.Data)
		}
	}
}

func TestOpenWriterTruncatesPartialTail(t *testing.T) {
	path := filepath.Join(t.TempDir(), "capture.seg")

	w, err := OpenWriter(path)
	if err != nil {
		t.Fatalf("open writer: %v", err)
	}
	if err := w.Append(&domain.Frame{Seq: 0, Data: []byte("a")}); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	// Simulate a crash mid-record: append half a header.
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	if _, err := f.Write([]byte{0, 0, 0, 1}); err != nil {
		t.Fatalf("write garbage: %v", err)
	}
	f.Close()

	w2, err := OpenWriter(path)
	if err != nil {
		t.Fatalf("open after crash: %v", err)
	}
	if err := w2.Append(&domain.Frame{Seq: 1, Data: []byte("b")}); err != nil {
		t.Fatalf("append after recovery: %v", err)
	}
	if err := w2.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	var seqs []uint64
	if err := Read(path, func(f *domain.Frame) error {
		seqs = append(seqs, f.Seq)
		return nil
	}); err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(seqs) != 2 || seqs[0] != 0 || seqs[1] != 1 {
		t.Fatalf("unexpected records after recovery: %v", seqs)
	}
}
