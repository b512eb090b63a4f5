package segment

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/Adithya-Monish-Kumar-K/mir/internal/indexer/index"
	apperrors "github.com/Adithya-Monish-Kumar-K/mir/pkg/errors"
)

// Store saves and loads generations by name inside one data directory. A
// per-name lock keeps readers from observing a generation while it is being
// replaced, and every file is written to a temp sibling and renamed.
type Store struct {
	dir    string
	commit sync.RWMutex
	mu     sync.Mutex
	locks  map[string]*sync.RWMutex
	loads  singleflight.Group
	logger *slog.Logger
}

func NewStore(dir string) *Store {
	return &Store{
		dir:    dir,
		locks:  make(map[string]*sync.RWMutex),
		logger: slog.Default().With("component", "segment-store"),
	}
}

// View runs fn while no Commit is in progress, so reads of several
// generations and the tombstone list inside fn see one consistent state.
func (s *Store) View(fn func() error) error {
	s.commit.RLock()
	defer s.commit.RUnlock()
	return fn()
}

// Commit runs a multi-file transition exclusively with respect to View.
func (s *Store) Commit(fn func() error) error {
	s.commit.Lock()
	defer s.commit.Unlock()
	return fn()
}

func (s *Store) Dir() string {
	return s.dir
}

func (s *Store) GenerationPath(name string) string {
	return filepath.Join(s.dir, name+generationExt)
}

func (s *Store) PositionsPath(name string) string {
	return filepath.Join(s.dir, name+positionsExt)
}

func (s *Store) lock(name string) *sync.RWMutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[name]
	if !ok {
		l = &sync.RWMutex{}
		s.locks[name] = l
	}
	return l
}

// Save persists gen under gen.Name. The position table must be in memory.
// Both files are fully written before either is renamed; the generation file
// is renamed last, so a reader that sees the new generation always finds
// its position table.
func (s *Store) Save(gen *index.Generation) error {
	if gen.Name == "" {
		return fmt.Errorf("saving generation: empty name")
	}
	if gen.FormatVersion == "" {
		gen.FormatVersion = index.FormatVersion
	}
	if gen.Positions == nil && len(gen.Index) > 0 {
		return fmt.Errorf("saving %s: position table not loaded", fmtName(gen.Name))
	}
	if err := gen.Validate(); err != nil {
		return fmt.Errorf("saving %s: %w", fmtName(gen.Name), err)
	}

	l := s.lock(gen.Name)
	l.Lock()
	defer l.Unlock()

	genPath := s.GenerationPath(gen.Name)
	posPath := s.PositionsPath(gen.Name)

	posTmp, err := writeTemp(posPath, func(w io.Writer) error {
		return encodePositions(w, gen.Positions, gen.BuiltAt)
	})
	if err != nil {
		return apperrors.Wrap(apperrors.ErrIO, posPath, err)
	}
	genTmp, err := writeTemp(genPath, func(w io.Writer) error {
		return encodeGeneration(w, gen)
	})
	if err != nil {
		os.Remove(posTmp)
		return apperrors.Wrap(apperrors.ErrIO, genPath, err)
	}
	if err := os.Rename(posTmp, posPath); err != nil {
		os.Remove(posTmp)
		os.Remove(genTmp)
		return apperrors.Wrap(apperrors.ErrIO, posPath, err)
	}
	if err := os.Rename(genTmp, genPath); err != nil {
		os.Remove(genTmp)
		return apperrors.Wrap(apperrors.ErrIO, genPath, err)
	}
	s.logger.Info("generation saved",
		"generation", gen.Name,
		"documents", len(gen.Documents),
		"terms", len(gen.Index),
		"positions", len(gen.Positions),
	)
	return nil
}

// Load reads the generation without its position table. A missing file
// fails with ErrNoGeneration; any layout or version mismatch fails with
// ErrIncompatibleFormat.
func (s *Store) Load(name string) (*index.Generation, error) {
	l := s.lock(name)
	l.RLock()
	defer l.RUnlock()

	path := s.GenerationPath(name)
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, apperrors.New(apperrors.ErrNoGeneration, path, fmtName(name)+" has not been built")
	}
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrIO, path, err)
	}
	gen, err := decodeGeneration(data, name, path)
	if err != nil {
		return nil, err
	}
	s.logger.Debug("generation loaded", "generation", name, "documents", len(gen.Documents), "terms", len(gen.Index))
	return gen, nil
}

// LoadOptional is Load with a missing generation reported as nil.
func (s *Store) LoadOptional(name string) (*index.Generation, error) {
	gen, err := s.Load(name)
	if apperrors.Is(err, apperrors.ErrNoGeneration) {
		return nil, nil
	}
	return gen, err
}

// Positions reads the position table of the build of name stamped builtAt.
// Concurrent calls for the same build share one read.
func (s *Store) Positions(name string, builtAt time.Time) ([]uint32, error) {
	key := name + "@" + strconv.FormatInt(builtAt.UnixNano(), 10)
	v, err, _ := s.loads.Do(key, func() (any, error) {
		l := s.lock(name)
		l.RLock()
		defer l.RUnlock()

		path := s.PositionsPath(name)
		data, err := os.ReadFile(path)
		if errors.Is(err, fs.ErrNotExist) {
			return nil, apperrors.New(apperrors.ErrNoGeneration, path, "position table missing")
		}
		if err != nil {
			return nil, apperrors.Wrap(apperrors.ErrIO, path, err)
		}
		return decodePositions(data, builtAt, path)
	})
	if err != nil {
		return nil, err
	}
	return v.([]uint32), nil
}

// LoadPositions fills gen.Positions if it is not loaded yet. gen must not be
// shared with other goroutines while this runs.
func (s *Store) LoadPositions(gen *index.Generation) error {
	if gen == nil || gen.PositionsLoaded() {
		return nil
	}
	positions, err := s.Positions(gen.Name, gen.BuiltAt)
	if err != nil {
		return err
	}
	gen.Positions = positions
	return nil
}

// Stamp returns the build time of name by reading only the file header.
func (s *Store) Stamp(name string) (time.Time, bool, error) {
	l := s.lock(name)
	l.RLock()
	defer l.RUnlock()

	path := s.GenerationPath(name)
	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, apperrors.Wrap(apperrors.ErrIO, path, err)
	}
	defer f.Close()
	buf := make([]byte, HeaderSize)
	if _, err := io.ReadFull(f, buf); err != nil {
		return time.Time{}, false, apperrors.New(apperrors.ErrIncompatibleFormat, path, "file too short")
	}
	ts, err := readStamp(buf, path)
	if err != nil {
		return time.Time{}, false, err
	}
	return ts, true, nil
}

func (s *Store) Exists(name string) bool {
	_, err := os.Stat(s.GenerationPath(name))
	return err == nil
}

// Remove deletes both files of name. Removing a missing generation is not an
// error.
func (s *Store) Remove(name string) error {
	l := s.lock(name)
	l.Lock()
	defer l.Unlock()

	for _, p := range []string{s.GenerationPath(name), s.PositionsPath(name)} {
		if err := os.Remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return apperrors.Wrap(apperrors.ErrIO, p, err)
		}
	}
	s.logger.Info("generation removed", "generation", name)
	return nil
}

func fmtName(name string) string {
	return fmt.Sprintf("generation %q", name)
}
