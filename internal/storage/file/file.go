// Package file реализует бэкенд хранилища коллекций на локальных файлах:
// один JSON-файл на семейство записей.
package file

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/magabrotheeeer/companion-gate/internal/storage"
)

// Backend хранит коллекции в каталоге dir.
type Backend struct {
	dir string

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// New создает каталог при необходимости и возвращает бэкенд.
func New(dir string) (*Backend, error) {
	const op = "storage.file.New"
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &Backend{dir: dir, locks: make(map[string]*sync.Mutex)}, nil
}

// Path возвращает путь к файлу семейства.
func (b *Backend) Path(family string) string {
	return filepath.Join(b.dir, family+".json")
}

func (b *Backend) lock(family string) func() {
	b.mu.Lock()
	l, ok := b.locks[family]
	if !ok {
		l = &sync.Mutex{}
		b.locks[family] = l
	}
	b.mu.Unlock()
	l.Lock()
	return l.Unlock
}

// Read читает файл семейства.
func (b *Backend) Read(_ context.Context, family string) ([]byte, error) {
	const op = "storage.file.Read"
	defer b.lock(family)()

	data, err := os.ReadFile(b.Path(family))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return data, nil
}

// Write пишет во временный файл в том же каталоге и переименовывает его
// поверх основного, поэтому сбой посреди записи не портит прежнее содержимое.
func (b *Backend) Write(_ context.Context, family string, data []byte) error {
	const op = "storage.file.Write"
	defer b.lock(family)()

	tmp, err := os.CreateTemp(b.dir, family+".*.tmp")
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("%s: write: %w", op, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("%s: sync: %w", op, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("%s: close: %w", op, err)
	}
	if err := os.Rename(tmpPath, b.Path(family)); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("%s: rename: %w", op, err)
	}
	return nil
}

// Quarantine переименовывает файл семейства в <family>.json.corrupt-<suffix>.
func (b *Backend) Quarantine(_ context.Context, family, suffix string) (string, error) {
	const op = "storage.file.Quarantine"
	defer b.lock(family)()

	backup := b.Path(family) + ".corrupt-" + suffix
	if err := os.Rename(b.Path(family), backup); err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	return backup, nil
}
