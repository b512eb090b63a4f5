package segment

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"hash/crc32"
	"time"

	"github.com/Adithya-Monish-Kumar-K/mir/internal/indexer/index"
	apperrors "github.com/Adithya-Monish-Kumar-K/mir/pkg/errors"
)

type header struct {
	Magic   uint32
	Layout  uint32
	BuiltAt int64
}

func parseHeader(data []byte, magic uint32, path string) (header, error) {
	if len(data) < HeaderSize {
		return header{}, apperrors.New(apperrors.ErrIncompatibleFormat, path, "file too short")
	}
	h := header{
		Magic:   binary.LittleEndian.Uint32(data[0:4]),
		Layout:  binary.LittleEndian.Uint32(data[4:8]),
		BuiltAt: int64(binary.LittleEndian.Uint64(data[8:16])),
	}
	if h.Magic != magic {
		return header{}, apperrors.Newf(apperrors.ErrIncompatibleFormat, path, "bad magic bytes %x", h.Magic)
	}
	if h.Layout != LayoutVersion {
		return header{}, apperrors.Newf(apperrors.ErrIncompatibleFormat, path, "layout version %d, want %d", h.Layout, LayoutVersion)
	}
	return h, nil
}

// body returns the checksummed payload between header and footer.
func body(data []byte, path string) ([]byte, error) {
	if len(data) < HeaderSize+FooterSize {
		return nil, apperrors.New(apperrors.ErrIncompatibleFormat, path, "file too short")
	}
	payload := data[HeaderSize : len(data)-FooterSize]
	want := binary.LittleEndian.Uint32(data[len(data)-FooterSize:])
	if got := crc32.ChecksumIEEE(payload); got != want {
		return nil, apperrors.Newf(apperrors.ErrIncompatibleFormat, path, "checksum mismatch %08x != %08x", got, want)
	}
	return payload, nil
}

type recordReader struct {
	buf  *bytes.Reader
	path string
}

func (rr *recordReader) next(name string, v any) error {
	var size uint32
	if err := binary.Read(rr.buf, binary.LittleEndian, &size); err != nil {
		return apperrors.Newf(apperrors.ErrIncompatibleFormat, rr.path, "missing %s record", name)
	}
	if int64(size) > int64(rr.buf.Len()) {
		return apperrors.Newf(apperrors.ErrIncompatibleFormat, rr.path, "truncated %s record", name)
	}
	data := make([]byte, size)
	if _, err := rr.buf.Read(data); err != nil {
		return apperrors.Newf(apperrors.ErrIncompatibleFormat, rr.path, "reading %s record: %v", name, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return apperrors.Newf(apperrors.ErrIncompatibleFormat, rr.path, "parsing %s record: %v", name, err)
	}
	return nil
}

// decodeGeneration reads the records back in the order they were written.
// The version tag is checked before anything else is parsed.
func decodeGeneration(data []byte, name, path string) (*index.Generation, error) {
	h, err := parseHeader(data, GenerationMagic, path)
	if err != nil {
		return nil, err
	}
	payload, err := body(data, path)
	if err != nil {
		return nil, err
	}
	rr := &recordReader{buf: bytes.NewReader(payload), path: path}

	var version string
	if err := rr.next("version", &version); err != nil {
		return nil, err
	}
	if version != index.FormatVersion {
		return nil, apperrors.Newf(apperrors.ErrIncompatibleFormat, path, "format %q, want %q", version, index.FormatVersion)
	}
	var catalog []catalogEntry
	if err := rr.next("catalog", &catalog); err != nil {
		return nil, err
	}
	var entries []termEntry
	if err := rr.next("index", &entries); err != nil {
		return nil, err
	}
	var meta map[string]documentMeta
	if err := rr.next("encodings", &meta); err != nil {
		return nil, err
	}
	var builtAtText string
	if err := rr.next("builtAt", &builtAtText); err != nil {
		return nil, err
	}
	builtAt, err := time.Parse(time.RFC3339Nano, builtAtText)
	if err != nil {
		return nil, apperrors.Newf(apperrors.ErrIncompatibleFormat, path, "parsing build time: %v", err)
	}
	if builtAt.UnixNano() != h.BuiltAt {
		return nil, apperrors.New(apperrors.ErrIncompatibleFormat, path, "build time does not match header")
	}

	gen := &index.Generation{
		Name:          name,
		FormatVersion: version,
		Documents:     make([]index.Document, len(catalog)),
		Index:         make(index.InvertedIndex, len(entries)),
		BuiltAt:       builtAt.UTC(),
	}
	for i, c := range catalog {
		m, ok := meta[c.Path]
		if !ok {
			return nil, apperrors.Newf(apperrors.ErrIncompatibleFormat, path, "no encoding metadata for %q", c.Path)
		}
		gen.Documents[i] = index.Document{
			ID:         c.ID,
			Path:       c.Path,
			Encoding:   m.Encoding,
			SizeBytes:  m.SizeBytes,
			ModifiedAt: time.Unix(0, m.ModifiedAt).UTC(),
		}
	}
	for _, e := range entries {
		pl := make(index.PostingList, len(e.Postings))
		for j, p := range e.Postings {
			pl[j] = index.Posting{DocID: p[0], Frequency: p[1], PositionStart: p[2]}
		}
		gen.Index[e.Term] = pl
	}
	if err := gen.Validate(); err != nil {
		return nil, apperrors.Newf(apperrors.ErrIncompatibleFormat, path, "%v", err)
	}
	return gen, nil
}

func decodePositions(data []byte, builtAt time.Time, path string) ([]uint32, error) {
	h, err := parseHeader(data, PositionsMagic, path)
	if err != nil {
		return nil, err
	}
	if h.BuiltAt != builtAt.UnixNano() {
		return nil, apperrors.New(apperrors.ErrIncompatibleFormat, path, "position table belongs to a different build")
	}
	payload, err := body(data, path)
	if err != nil {
		return nil, err
	}
	if len(payload) < 8 {
		return nil, apperrors.New(apperrors.ErrIncompatibleFormat, path, "missing position count")
	}
	count := binary.LittleEndian.Uint64(payload[:8])
	raw := payload[8:]
	if uint64(len(raw)) != count*4 {
		return nil, apperrors.Newf(apperrors.ErrIncompatibleFormat, path, "expected %d positions, found %d bytes", count, len(raw))
	}
	positions := make([]uint32, count)
	for i := range positions {
		positions[i] = binary.LittleEndian.Uint32(raw[i*4:])
	}
	return positions, nil
}

func readStamp(data []byte, path string) (time.Time, error) {
	h, err := parseHeader(data, GenerationMagic, path)
	if err != nil {
		return time.Time{}, err
	}
	return time.Unix(0, h.BuiltAt).UTC(), nil
}
