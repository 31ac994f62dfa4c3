package persist

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
)

// FileBackend keeps one file per slot: <dir>/<prefix><slot><ext>.
type FileBackend struct {
	dir    string
	prefix string
	ext    string
}

func NewFileBackend(dir, prefix, ext string) (*FileBackend, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, eris.Wrapf(err, "create save dir %s", dir)
	}
	return &FileBackend{dir: dir, prefix: prefix, ext: ext}, nil
}

// Path returns the file that holds slot.
func (b *FileBackend) Path(slot int) string {
	return filepath.Join(b.dir, b.prefix+strconv.Itoa(slot)+b.ext)
}

// slotOf parses a file name produced by Path. Names with leading zeros or
// signs are rejected so that every slot maps to exactly one file.
func (b *FileBackend) slotOf(name string) (int, bool) {
	if len(name) <= len(b.prefix)+len(b.ext) {
		return 0, false
	}
	if !strings.HasPrefix(name, b.prefix) || !strings.HasSuffix(name, b.ext) {
		return 0, false
	}
	num := name[len(b.prefix) : len(name)-len(b.ext)]
	n, err := strconv.Atoi(num)
	if err != nil || n < 0 || strconv.Itoa(n) != num {
		return 0, false
	}
	return n, true
}

func (b *FileBackend) List(ctx context.Context) ([]int, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(b.dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, eris.Wrapf(err, "list %s", b.dir)
	}
	var slots []int
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if n, ok := b.slotOf(e.Name()); ok {
			slots = append(slots, n)
		}
	}
	sort.Ints(slots)
	return slots, nil
}

func (b *FileBackend) Read(ctx context.Context, slot int) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(b.Path(slot))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, eris.Wrapf(ErrSlotNotFound, "slot %d", slot)
		}
		return nil, eris.Wrapf(err, "read slot %d", slot)
	}
	return data, nil
}

// Write replaces the slot file atomically: the data goes to a temp file in
// the same directory which is then renamed over the target.
func (b *FileBackend) Write(ctx context.Context, slot int, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := os.MkdirAll(b.dir, 0o755); err != nil {
		return eris.Wrapf(err, "create save dir %s", b.dir)
	}
	tmp, err := os.CreateTemp(b.dir, "."+b.prefix+"-*.tmp")
	if err != nil {
		return eris.Wrapf(err, "write slot %d", slot)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return eris.Wrapf(err, "write slot %d", slot)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return eris.Wrapf(err, "sync slot %d", slot)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return eris.Wrapf(err, "close slot %d", slot)
	}
	if err := os.Rename(tmpName, b.Path(slot)); err != nil {
		os.Remove(tmpName)
		return eris.Wrapf(err, "replace slot %d", slot)
	}
	return nil
}

func (b *FileBackend) Delete(ctx context.Context, slot int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := os.Remove(b.Path(slot)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return eris.Wrapf(err, "delete slot %d", slot)
	}
	return nil
}

func (b *FileBackend) Close() error { return nil }
