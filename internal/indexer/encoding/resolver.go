// Package encoding decides how each document's bytes are decoded and
// performs the decoding. Detection itself is delegated to a Detector; the
// Resolver applies the size and confidence policy on top of the guess.
package encoding

import (
	"fmt"
	"io"
	"os"

	"github.com/Adithya-Monish-Kumar-K/mir/internal/indexer/index"
	apperrors "github.com/Adithya-Monish-Kumar-K/mir/pkg/errors"
)

// Names with special handling.
const (
	ASCII       = "ascii"
	UTF8        = "utf-8"
	UTF8WithBOM = "utf-8-sig"
)

// Detector guesses an encoding name and a confidence in [0,1] for a sample.
type Detector interface {
	Detect(sample []byte) (name string, confidence float64, err error)
}

type Options struct {
	// SampleBytes bounds how much of a file is handed to the Detector.
	SampleBytes int64
	// ReplaceBelowConfidence switches to the Replace policy below it.
	ReplaceBelowConfidence float64
	// LargeFileConfidence is reported for large files detected as ASCII.
	LargeFileConfidence float64
}

type Resolver struct {
	detector Detector
	opts     Options
}

func NewResolver(detector Detector, opts Options) *Resolver {
	return &Resolver{detector: detector, opts: opts}
}

func (r *Resolver) SampleBytes() int64 {
	return r.opts.SampleBytes
}

// ForcedUTF8BOM is the contract used when an instruction bypasses detection.
func ForcedUTF8BOM() index.EncodingInfo {
	return index.EncodingInfo{Name: UTF8WithBOM, Confidence: 1, ErrorPolicy: index.Strict}
}

// Resolve derives the decoding contract from a sample of at most SampleBytes
// and the full file size.
//
// Files larger than the sample that look like ASCII are assumed to mix
// encodings further on, so they get UTF-8 with lowered confidence and the
// Mixed policy. Low-confidence guesses decode with Replace. Everything else
// is Strict.
func (r *Resolver) Resolve(sample []byte, size int64) (index.EncodingInfo, error) {
	if int64(len(sample)) > r.opts.SampleBytes {
		sample = sample[:r.opts.SampleBytes]
	}
	name, confidence, err := r.detector.Detect(sample)
	if err != nil {
		return index.EncodingInfo{}, fmt.Errorf("detecting encoding: %w", err)
	}
	name = CanonicalName(name)
	switch {
	case size > r.opts.SampleBytes && name == ASCII:
		return index.EncodingInfo{Name: UTF8, Confidence: r.opts.LargeFileConfidence, ErrorPolicy: index.Mixed}, nil
	case confidence < r.opts.ReplaceBelowConfidence:
		return index.EncodingInfo{Name: name, Confidence: confidence, ErrorPolicy: index.Replace}, nil
	default:
		return index.EncodingInfo{Name: name, Confidence: confidence, ErrorPolicy: index.Strict}, nil
	}
}

// ResolveFile reads only the bounded prefix of path.
func (r *Resolver) ResolveFile(path string) (index.EncodingInfo, error) {
	f, err := os.Open(path)
	if err != nil {
		return index.EncodingInfo{}, apperrors.Wrap(apperrors.ErrIO, path, err)
	}
	defer f.Close()
	st, err := f.Stat()
	if err != nil {
		return index.EncodingInfo{}, apperrors.Wrap(apperrors.ErrIO, path, err)
	}
	sample, err := io.ReadAll(io.LimitReader(f, r.opts.SampleBytes))
	if err != nil {
		return index.EncodingInfo{}, apperrors.Wrap(apperrors.ErrIO, path, err)
	}
	return r.Resolve(sample, st.Size())
}
