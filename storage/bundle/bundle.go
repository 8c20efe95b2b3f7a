package bundle

import (
	"archive/tar"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"xdao.co/nref/event"
	"xdao.co/nref/storage"
)

// FormatVersion is the current bundle index schema version.
const FormatVersion = 1

var epoch0 = time.Unix(0, 0).UTC()

const entriesDir = "entries/"

// Export writes a deterministic TAR bundle containing every saved entry in
// store.
//
// Entry order is lexicographic by event id and TAR headers are normalized, so
// exporting the same store twice yields identical bytes. Every exported event
// is checked against its content address first.
func Export(w io.Writer, store storage.Store, includeIndex bool) (int, error) {
	if store == nil {
		return 0, fmt.Errorf("bundle: nil store")
	}
	entries, err := store.List()
	if err != nil {
		return 0, err
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Event.ID.String() < entries[j].Event.ID.String()
	})

	tw := tar.NewWriter(w)
	idx := indexJSON{Version: FormatVersion, Entries: make([]indexEntry, 0, len(entries))}
	for _, e := range entries {
		if err := e.Event.CheckID(); err != nil {
			_ = tw.Close()
			return 0, err
		}
		b, err := json.MarshalIndent(e, "", "  ")
		if err != nil {
			_ = tw.Close()
			return 0, err
		}
		if err := writeFile(tw, entriesDir+e.Event.ID.String()+".json", b); err != nil {
			_ = tw.Close()
			return 0, err
		}
		c, err := e.Event.ID.CID()
		if err != nil {
			_ = tw.Close()
			return 0, err
		}
		idx.Entries = append(idx.Entries, indexEntry{
			ID:      e.Event.ID.String(),
			CID:     c.String(),
			Relay:   e.Metadata.Relay,
			SavedAt: e.Metadata.SavedAt,
		})
	}

	if includeIndex {
		b, err := marshalCanonicalIndexJSON(idx)
		if err != nil {
			_ = tw.Close()
			return 0, err
		}
		if err := writeFile(tw, "index.json", b); err != nil {
			_ = tw.Close()
			return 0, err
		}
	}

	return len(entries), tw.Close()
}

// ImportOptions controls bundle import behavior.
type ImportOptions struct {
	// Overwrite replaces entries that already exist in the target store.
	// When false, existing entries are left untouched and counted as skipped.
	Overwrite bool

	// IgnoreUnknown controls whether unknown TAR entries are ignored.
	//
	// Default (false) is fail-closed: unknown entries cause Import to return an error.
	IgnoreUnknown bool
}

// ImportStats reports what Import did.
type ImportStats struct {
	Imported int
	Skipped  int
}

// Import reads a bundle from r and writes its entries into store.
//
// Each entry's event must hash to its id and the file name must name that id.
func Import(r io.Reader, store storage.Store, opts ImportOptions) (ImportStats, error) {
	var stats ImportStats
	if store == nil {
		return stats, fmt.Errorf("bundle: nil store")
	}

	tr := tar.NewReader(r)
	seen := map[event.ID]struct{}{}

	for {
		h, err := tr.Next()
		if err == io.EOF {
			return stats, nil
		}
		if err != nil {
			return stats, err
		}
		name := cleanTarPath(h.Name)
		if name == "" {
			return stats, fmt.Errorf("bundle: invalid entry path: %q", h.Name)
		}

		if h.Typeflag != tar.TypeReg {
			if opts.IgnoreUnknown {
				continue
			}
			return stats, fmt.Errorf("bundle: unexpected tar entry type: %v (%s)", h.Typeflag, name)
		}

		// Non-authoritative metadata.
		if name == "index.json" {
			_, _ = io.Copy(io.Discard, tr)
			continue
		}

		if !strings.HasPrefix(name, entriesDir) || !strings.HasSuffix(name, ".json") {
			if opts.IgnoreUnknown {
				_, _ = io.Copy(io.Discard, tr)
				continue
			}
			return stats, fmt.Errorf("bundle: unknown entry: %s", name)
		}

		id, err := event.ParseID(strings.TrimSuffix(strings.TrimPrefix(name, entriesDir), ".json"))
		if err != nil {
			return stats, err
		}
		if _, ok := seen[id]; ok {
			return stats, fmt.Errorf("bundle: duplicate entry: %s", id)
		}
		seen[id] = struct{}{}

		payload, err := io.ReadAll(tr)
		if err != nil {
			return stats, err
		}
		var entry storage.Entry
		if err := json.Unmarshal(payload, &entry); err != nil {
			return stats, fmt.Errorf("%w: %s: %v", storage.ErrCorrupt, name, err)
		}
		if err := entry.Validate(id); err != nil {
			return stats, err
		}
		if err := entry.Event.CheckID(); err != nil {
			return stats, err
		}

		if !opts.Overwrite {
			exists, err := store.Exists(id)
			if err != nil {
				return stats, err
			}
			if exists {
				stats.Skipped++
				continue
			}
		}
		if err := store.Write(id, entry); err != nil {
			return stats, err
		}
		stats.Imported++
	}
}

type indexJSON struct {
	Version int          `json:"version"`
	Entries []indexEntry `json:"entries"`
}

type indexEntry struct {
	ID      string `json:"id"`
	CID     string `json:"cid"`
	Relay   string `json:"relay"`
	SavedAt string `json:"savedAt"`
}

func marshalCanonicalIndexJSON(idx indexJSON) ([]byte, error) {
	// indexJSON is composed only of structs + slices; encoding/json will be deterministic.
	b, err := json.Marshal(idx)
	if err != nil {
		return nil, err
	}
	return append(b, '\n'), nil
}

func writeFile(tw *tar.Writer, name string, content []byte) error {
	hdr := &tar.Header{
		Name:     name,
		Mode:     0o644,
		Size:     int64(len(content)),
		ModTime:  epoch0,
		Typeflag: tar.TypeReg,
	}
	if err := tw.WriteHeader(hdr); err != nil {
		return err
	}
	_, err := io.Copy(tw, bytes.NewReader(content))
	return err
}

func cleanTarPath(name string) string {
	name = strings.TrimSpace(name)
	name = strings.ReplaceAll(name, "\\", "/")
	name = strings.TrimPrefix(name, "./")
	name = strings.TrimPrefix(name, "/")
	if name == "" {
		return ""
	}

	parts := strings.Split(name, "/")
	for _, part := range parts {
		if part == "" || part == "." || part == ".." {
			return ""
		}
	}
	return strings.Join(parts, "/")
}
