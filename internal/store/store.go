// Package store persists the datasets that DATA steps read and publish.
package store

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"nickandperla.net/dstep/internal/table"
)

// ErrNotFound is returned by Lookup for an unknown dataset.
var ErrNotFound = errors.New("dataset not found")

// DefaultLibrary is the library prefix that names may carry.
const DefaultLibrary = "work"

// Store is the dataset collaborator of a running program.
type Store interface {
	// Lookup returns a published dataset. The table must not be modified.
	Lookup(name string) (*table.Table, error)
	// Publish makes a dataset visible, replacing any earlier one.
	Publish(name string, t *table.Table) error
	// Close releases resources.
	Close() error
}

// Info describes one published dataset.
type Info struct {
	Name      string
	Columns   []string
	Rows      int
	RunID     string
	Published time.Time
}

// Catalog lists published datasets.
type Catalog interface {
	Datasets() ([]Info, error)
}

// RunPublisher records the id of the run that published a dataset.
type RunPublisher interface {
	PublishRun(runID, name string, t *table.Table) error
}

// Normalize maps a dataset name to its canonical form: lower case without
// the work. library prefix. Other libraries are not supported.
func Normalize(name string) (string, error) {
	n := strings.ToLower(strings.TrimSpace(name))
	if lib, rest, ok := strings.Cut(n, "."); ok {
		if lib != DefaultLibrary {
			return "", fmt.Errorf("unknown library %q in dataset name %q", lib, name)
		}
		n = rest
	}
	if n == "" {
		return "", fmt.Errorf("invalid dataset name %q", name)
	}
	for i, r := range n {
		if r == '_' || (r >= 'a' && r <= 'z') || (i > 0 && r >= '0' && r <= '9') {
			continue
		}
		return "", fmt.Errorf("invalid dataset name %q", name)
	}
	return n, nil
}
