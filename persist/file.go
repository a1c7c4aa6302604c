package persist

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

type filePersistor[S any] struct {
	path     string
	throttle time.Duration
}

// FileOption configures a file persistor.
type FileOption func(*fileOptions)

type fileOptions struct {
	throttle time.Duration
}

// WithFileThrottle sets the persistor's preferred minimum interval between
// writes.
func WithFileThrottle(d time.Duration) FileOption {
	return func(o *fileOptions) { o.throttle = d }
}

// NewFilePersistor creates a Persistor storing the state as JSON at path.
// Saves go through a temp file and rename so a crash mid-write never leaves
// a torn state behind.
func NewFilePersistor[S any](path string, opts ...FileOption) Persistor[S] {
	var o fileOptions
	for _, opt := range opts {
		opt(&o)
	}
	return &filePersistor[S]{path: path, throttle: o.throttle}
}

func (p *filePersistor[S]) ReadState(_ context.Context) (*S, error) {
	data, err := os.ReadFile(p.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: %s: %v", ErrLoadFailed, p.path, err)
	}

	var state S
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrLoadFailed, p.path, err)
	}
	return &state, nil
}

func (p *filePersistor[S]) SaveInitialState(ctx context.Context, state S) error {
	return p.write(state)
}

// PersistDifference writes a full snapshot: with a single JSON file there is
// nothing cheaper than replacing it, so lastPersisted is ignored.
func (p *filePersistor[S]) PersistDifference(_ context.Context, _ *S, current S) error {
	return p.write(current)
}

func (p *filePersistor[S]) write(state S) error {
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrSaveFailed, p.path, err)
	}

	dir := filepath.Dir(p.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrSaveFailed, p.path, err)
	}

	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrSaveFailed, p.path, err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("%w: %s: %v", ErrSaveFailed, p.path, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("%w: %s: %v", ErrSaveFailed, p.path, err)
	}

	if err := os.Rename(tmpName, p.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("%w: %s: %v", ErrSaveFailed, p.path, err)
	}
	return nil
}

func (p *filePersistor[S]) DeleteState(_ context.Context) error {
	if err := os.Remove(p.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("delete failed: %s: %w", p.path, err)
	}
	return nil
}

func (p *filePersistor[S]) Throttle() time.Duration {
	return p.throttle
}
