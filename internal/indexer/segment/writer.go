// Package segment is the on-disk store for index generations. Each generation
// name owns two files: <name>.mir holds the format tag, catalog, inverted
// index, encoding metadata and build time as a sequence of length-prefixed
// JSON records; <name>.pos holds the raw position table so it can be loaded
// only when a ranking mode needs it.
package segment

import (
	"bufio"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"hash"
	"hash/crc32"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/Adithya-Monish-Kumar-K/mir/internal/indexer/index"
)

const (
	GenerationMagic uint32 = 0x4D495247 // "MIRG"
	PositionsMagic  uint32 = 0x4D495250 // "MIRP"
	LayoutVersion   uint32 = 1
	HeaderSize      int    = 16
	FooterSize      int    = 4

	generationExt = ".mir"
	positionsExt  = ".pos"
)

type catalogEntry struct {
	ID   uint32 `json:"id"`
	Path string `json:"path"`
}

// termEntry packs postings as [docID, frequency, positionStart] triples.
type termEntry struct {
	Term     string      `json:"t"`
	Postings [][3]uint32 `json:"p"`
}

type documentMeta struct {
	Encoding   index.EncodingInfo `json:"encoding"`
	SizeBytes  uint64             `json:"size"`
	ModifiedAt int64              `json:"modifiedAt"`
}

func putHeader(buf []byte, magic uint32, builtAt time.Time) {
	binary.LittleEndian.PutUint32(buf[0:4], magic)
	binary.LittleEndian.PutUint32(buf[4:8], LayoutVersion)
	binary.LittleEndian.PutUint64(buf[8:16], uint64(builtAt.UnixNano()))
}

// recordWriter frames records and checksums everything after the header.
type recordWriter struct {
	w   io.Writer
	crc hash.Hash32
}

func newRecordWriter(w io.Writer) *recordWriter {
	crc := crc32.NewIEEE()
	return &recordWriter{w: io.MultiWriter(w, crc), crc: crc}
}

func (rw *recordWriter) record(name string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshaling %s record: %w", name, err)
	}
	var size [4]byte
	binary.LittleEndian.PutUint32(size[:], uint32(len(data)))
	if _, err := rw.w.Write(size[:]); err != nil {
		return fmt.Errorf("writing %s record: %w", name, err)
	}
	if _, err := rw.w.Write(data); err != nil {
		return fmt.Errorf("writing %s record: %w", name, err)
	}
	return nil
}

func (rw *recordWriter) footer() []byte {
	out := make([]byte, FooterSize)
	binary.LittleEndian.PutUint32(out, rw.crc.Sum32())
	return out
}

// encodeGeneration writes the record stream in its fixed order.
func encodeGeneration(w io.Writer, gen *index.Generation) error {
	header := make([]byte, HeaderSize)
	putHeader(header, GenerationMagic, gen.BuiltAt)
	if _, err := w.Write(header); err != nil {
		return fmt.Errorf("writing header: %w", err)
	}

	catalog := make([]catalogEntry, len(gen.Documents))
	meta := make(map[string]documentMeta, len(gen.Documents))
	for i, d := range gen.Documents {
		catalog[i] = catalogEntry{ID: d.ID, Path: d.Path}
		meta[d.Path] = documentMeta{
			Encoding:   d.Encoding,
			SizeBytes:  d.SizeBytes,
			ModifiedAt: d.ModifiedAt.UnixNano(),
		}
	}
	terms := gen.Index.Terms()
	entries := make([]termEntry, len(terms))
	for i, t := range terms {
		pl := gen.Index[t]
		packed := make([][3]uint32, len(pl))
		for j, p := range pl {
			packed[j] = [3]uint32{p.DocID, p.Frequency, p.PositionStart}
		}
		entries[i] = termEntry{Term: t, Postings: packed}
	}

	rw := newRecordWriter(w)
	if err := rw.record("version", gen.FormatVersion); err != nil {
		return err
	}
	if err := rw.record("catalog", catalog); err != nil {
		return err
	}
	if err := rw.record("index", entries); err != nil {
		return err
	}
	if err := rw.record("encodings", meta); err != nil {
		return err
	}
	if err := rw.record("builtAt", gen.BuiltAt.UTC().Format(time.RFC3339Nano)); err != nil {
		return err
	}
	if _, err := w.Write(rw.footer()); err != nil {
		return fmt.Errorf("writing footer: %w", err)
	}
	return nil
}

func encodePositions(w io.Writer, positions []uint32, builtAt time.Time) error {
	header := make([]byte, HeaderSize)
	putHeader(header, PositionsMagic, builtAt)
	if _, err := w.Write(header); err != nil {
		return fmt.Errorf("writing header: %w", err)
	}
	rw := newRecordWriter(w)
	var count [8]byte
	binary.LittleEndian.PutUint64(count[:], uint64(len(positions)))
	if _, err := rw.w.Write(count[:]); err != nil {
		return fmt.Errorf("writing position count: %w", err)
	}
	if err := binary.Write(rw.w, binary.LittleEndian, positions); err != nil {
		return fmt.Errorf("writing positions: %w", err)
	}
	if _, err := w.Write(rw.footer()); err != nil {
		return fmt.Errorf("writing footer: %w", err)
	}
	return nil
}

// writeTemp writes through encode into a .tmp sibling of finalPath and
// syncs it. The caller renames it into place.
func writeTemp(finalPath string, encode func(io.Writer) error) (string, error) {
	if err := os.MkdirAll(filepath.Dir(finalPath), 0755); err != nil {
		return "", fmt.Errorf("creating data directory: %w", err)
	}
	tmpPath := finalPath + ".tmp"
	f, err := os.Create(tmpPath)
	if err != nil {
		return "", fmt.Errorf("creating temp file: %w", err)
	}
	bw := bufio.NewWriterSize(f, 64<<10)
	if err := encode(bw); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return "", err
	}
	if err := bw.Flush(); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return "", fmt.Errorf("flushing %s: %w", tmpPath, err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return "", fmt.Errorf("syncing %s: %w", tmpPath, err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmpPath)
		return "", fmt.Errorf("closing %s: %w", tmpPath, err)
	}
	return tmpPath, nil
}
