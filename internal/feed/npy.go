package feed

import (
	"fmt"
	"os"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/sbinet/npyio/npy"
	"gonum.org/v1/gonum/mat"

	"github.com/tphakala/seld-go/internal/errors"
)

// matrixStore loads 2-D .npy files and keeps them in memory across epochs.
type matrixStore struct {
	cache *cache.Cache
}

// newMatrixStore returns a store caching matrices for ttl; a zero ttl keeps
// them for the lifetime of the store. A nil store is returned when caching
// is disabled, which makes every load hit the disk.
func newMatrixStore(enabled bool, ttl time.Duration) *matrixStore {
	if !enabled {
		return nil
	}
	if ttl <= 0 {
		ttl = cache.NoExpiration
	}
	// no janitor: expired entries are dropped lazily on Get
	return &matrixStore{cache: cache.New(ttl, 0)}
}

func (s *matrixStore) load(path string) (*mat.Dense, error) {
	if s != nil {
		if m, ok := s.cache.Get(path); ok {
			return m.(*mat.Dense), nil
		}
	}

	m, err := readMatrix(path)
	if err != nil {
		return nil, err
	}

	if s != nil {
		s.cache.SetDefault(path, m)
	}
	return m, nil
}

// len reports the number of cached matrices.
func (s *matrixStore) len() int {
	if s == nil {
		return 0
	}
	return s.cache.ItemCount()
}

// readShape returns the array shape stored in the header of a .npy file.
func readShape(path string) ([]int, error) {
	f, err := os.Open(path) //nolint:gosec // path from a listed dataset directory
	if err != nil {
		return nil, errors.DataError(fmt.Errorf("feed: open %s: %w", path, err), path)
	}
	defer f.Close()

	r, err := npy.NewReader(f)
	if err != nil {
		return nil, errors.DataError(fmt.Errorf("feed: read header of %s: %w", path, err), path)
	}
	return r.Header.Descr.Shape, nil
}

// readMatrix loads a C-ordered 2-D float32 or float64 array.
func readMatrix(path string) (*mat.Dense, error) {
	f, err := os.Open(path) //nolint:gosec // path from a listed dataset directory
	if err != nil {
		return nil, errors.DataError(fmt.Errorf("feed: open %s: %w", path, err), path)
	}
	defer f.Close()

	r, err := npy.NewReader(f)
	if err != nil {
		return nil, errors.DataError(fmt.Errorf("feed: read header of %s: %w", path, err), path)
	}

	descr := r.Header.Descr
	if len(descr.Shape) != 2 || descr.Fortran {
		return nil, errors.DataError(
			fmt.Errorf("feed: %s: expected C-ordered 2-D array, got shape %v fortran=%v", path, descr.Shape, descr.Fortran), path)
	}
	rows, cols := descr.Shape[0], descr.Shape[1]
	if rows == 0 || cols == 0 {
		return nil, errors.DataError(fmt.Errorf("feed: %s: empty array %v", path, descr.Shape), path)
	}

	data := make([]float64, rows*cols)
	switch descr.Type {
	case "<f8":
		if err := r.Read(&data); err != nil {
			return nil, errors.DataError(fmt.Errorf("feed: read %s: %w", path, err), path)
		}
	case "<f4":
		raw := make([]float32, rows*cols)
		if err := r.Read(&raw); err != nil {
			return nil, errors.DataError(fmt.Errorf("feed: read %s: %w", path, err), path)
		}
		for i, v := range raw {
			data[i] = float64(v)
		}
	default:
		return nil, errors.DataError(fmt.Errorf("feed: %s: unsupported dtype %s", path, descr.Type), path)
	}

	return mat.NewDense(rows, cols, data), nil
}
