package localfs

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"xdao.co/nref/event"
	"xdao.co/nref/storage"
)

const fileExt = ".json"

// Store keeps one pretty-printed JSON file per saved event, named
// <id-hex>.json, directly under its root directory.
//
// The directory is created on first write, not at construction, so a store
// can be opened against a folder the user has not created yet.
type Store struct {
	root   string
	logger *slog.Logger
}

var _ storage.Store = (*Store)(nil)

type Options struct {
	// Logger receives warnings about skipped files. Nil discards them.
	Logger *slog.Logger
}

// New constructs a store rooted at root.
func New(root string, opts Options) (*Store, error) {
	if strings.TrimSpace(root) == "" {
		return nil, errors.New("localfs: root directory is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Store{root: filepath.Clean(root), logger: logger}, nil
}

// Root returns the directory entries are stored in.
func (s *Store) Root() string { return s.root }

func (s *Store) Exists(id event.ID) (bool, error) {
	_, err := os.Stat(s.pathFor(id))
	if err == nil {
		return true, nil
	}
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	return false, err
}

func (s *Store) Read(id event.ID) (*storage.Entry, error) {
	b, err := os.ReadFile(s.pathFor(id))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, storage.ErrNotFound
		}
		return nil, err
	}
	entry, err := decode(b)
	if err != nil {
		return nil, err
	}
	if err := entry.Validate(id); err != nil {
		return nil, err
	}
	return entry, nil
}

func (s *Store) Write(id event.ID, entry storage.Entry) error {
	if err := entry.Validate(id); err != nil {
		return err
	}
	b, err := json.MarshalIndent(entry, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(s.root, 0o755); err != nil {
		return err
	}

	// Write to a sibling temp file and rename so readers never observe a
	// partially written entry.
	f, err := os.CreateTemp(s.root, ".tmp-"+id.Short()+"-*")
	if err != nil {
		return err
	}
	tmp := f.Name()
	if _, err := f.Write(b); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return err
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	if err := os.Chmod(tmp, 0o644); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	if err := os.Rename(tmp, s.pathFor(id)); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return nil
}

func (s *Store) Delete(id event.ID) (bool, error) {
	err := os.Remove(s.pathFor(id))
	if err == nil {
		return true, nil
	}
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	return false, err
}

// List returns every parsable entry, newest first. Files that are not
// entries (foreign files, corrupt JSON, a name that disagrees with the event
// inside) are skipped with a warning.
func (s *Store) List() ([]storage.Entry, error) {
	dirents, err := os.ReadDir(s.root)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}

	var entries []storage.Entry
	for _, d := range dirents {
		name := d.Name()
		if d.IsDir() || !strings.HasSuffix(name, fileExt) || strings.HasPrefix(name, ".") {
			continue
		}
		id, err := event.ParseID(strings.TrimSuffix(name, fileExt))
		if err != nil {
			s.logger.Warn("localfs: skipping file with non-id name", "file", name)
			continue
		}
		b, err := os.ReadFile(filepath.Join(s.root, name))
		if err != nil {
			s.logger.Warn("localfs: skipping unreadable file", "file", name, "err", err)
			continue
		}
		entry, err := decode(b)
		if err != nil {
			s.logger.Warn("localfs: skipping malformed entry", "file", name, "err", err)
			continue
		}
		if err := entry.Validate(id); err != nil {
			s.logger.Warn("localfs: skipping mismatched entry", "file", name, "err", err)
			continue
		}
		entries = append(entries, *entry)
	}

	storage.SortNewest(entries)
	return entries, nil
}

func (s *Store) pathFor(id event.ID) string {
	return filepath.Join(s.root, id.String()+fileExt)
}

func decode(b []byte) (*storage.Entry, error) {
	var entry storage.Entry
	if err := json.Unmarshal(b, &entry); err != nil {
		return nil, fmt.Errorf("%w: %v", storage.ErrCorrupt, err)
	}
	if entry.Event.ID.IsZero() {
		return nil, fmt.Errorf("%w: missing event", storage.ErrCorrupt)
	}
	return &entry, nil
}
