// Package output renders dusk scan results in the formats selectable with
// --format (pretty, plain, csv, json, yaml).
//
// Formatters are kept in a registry so the CLI can look them up by name:
//
//	formatter, err := output.Get("plain")
//	if err != nil {
//	    return err
//	}
//	var buf bytes.Buffer
//	if err := formatter.Format(&buf, output.NewResult(scan, rows, view)); err != nil {
//	    return err
//	}
package output

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"sort"
	"sync"

	"github.com/mattn/go-isatty"

	"github.com/jamesainslie/dusk/pkg/dusk/logging"
	"github.com/jamesainslie/dusk/pkg/dusk/types"
)

// logger is the package-level logger for output operations.
var logger = logging.Get("output")

// ErrUnknownFormat is returned for names no formatter is registered under.
var ErrUnknownFormat = errors.New("unknown formatter")

// FormatAuto picks pretty on a terminal and plain otherwise.
const FormatAuto = "auto"

// Row is one presented entry.
type Row struct {
	Path      string     `json:"path" yaml:"path"`
	Kind      types.Kind `json:"type" yaml:"type"`
	Depth     int        `json:"depth" yaml:"depth"`
	Size      int64      `json:"size" yaml:"size"`
	SizeHuman string     `json:"size_human" yaml:"size_human"`
	Owner     string     `json:"owner,omitempty" yaml:"owner,omitempty"`
	Files     int64      `json:"files,omitempty" yaml:"files,omitempty"`
	Inodes    int64      `json:"inodes,omitempty" yaml:"inodes,omitempty"`
}

// IsDir reports whether the row is a directory.
func (r Row) IsDir() bool {
	return r.Kind == types.KindDirectory
}

// View selects the optional columns.
type View struct {
	ShowOwner  bool
	ShowInodes bool
}

// Result is everything a formatter needs. Rows are already filtered and
// sorted.
type Result struct {
	ID       string
	Root     string
	Memory   types.MemoryLimitStatus
	Partial  bool
	Total    types.AggregatedDirectory
	Rows     []Row
	Warnings []types.ScanWarning
	Stats    types.ScanStats
	View     View
}

// NewResult builds a Result from a scan and the entries chosen for display.
func NewResult(scan *types.ScanResult, entries []types.ResultEntry, view View) *Result {
	rows := make([]Row, len(entries))
	for i, e := range entries {
		rows[i] = Row{
			Path:      e.Path,
			Kind:      e.Kind,
			Depth:     e.Depth,
			Size:      e.Bytes,
			SizeHuman: types.FormatSize(e.Bytes),
			Owner:     e.Owner,
			Files:     e.Files,
			Inodes:    e.Inodes,
		}
	}
	return &Result{
		ID:       scan.ID,
		Root:     scan.Root,
		Memory:   scan.Memory,
		Partial:  scan.Partial,
		Total:    scan.Total(),
		Rows:     rows,
		Warnings: scan.Warnings,
		Stats:    scan.Stats,
		View:     view,
	}
}

// Formatter is the interface that all output formatters must implement.
type Formatter interface {
	// Format writes the formatted output to the buffer.
	Format(w *bytes.Buffer, r *Result) error
}

// FormatterFactory is a function that creates a new Formatter instance.
type FormatterFactory func() Formatter

// Registry manages formatter registration and lookup.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]FormatterFactory
}

// NewRegistry creates a new formatter registry.
func NewRegistry() *Registry {
	return &Registry{
		factories: make(map[string]FormatterFactory),
	}
}

// Register adds a formatter factory to the registry, replacing any
// formatter with the same name.
func (r *Registry) Register(name string, factory FormatterFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[name] = factory
}

// Get returns a new formatter instance by name.
func (r *Registry) Get(name string) (Formatter, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	factory, ok := r.factories[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownFormat, name)
	}
	return factory(), nil
}

// Available returns a sorted list of all registered formatter names.
func (r *Registry) Available() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// DefaultRegistry is the global formatter registry.
var DefaultRegistry = NewRegistry()

// Register adds a formatter factory to the default registry.
func Register(name string, factory FormatterFactory) {
	DefaultRegistry.Register(name, factory)
}

// Get returns a new formatter instance from the default registry.
func Get(name string) (Formatter, error) {
	return DefaultRegistry.Get(name)
}

// Available returns the names registered in the default registry.
func Available() []string {
	return DefaultRegistry.Available()
}

// Resolve maps "auto" (or an empty name) to pretty when tty is true and
// plain otherwise. Other names are returned unchanged.
func Resolve(name string, tty bool) string {
	if name != "" && name != FormatAuto {
		return name
	}
	if tty {
		return "pretty"
	}
	return "plain"
}

// IsTerminal reports whether f is attached to a terminal.
func IsTerminal(f *os.File) bool {
	fd := f.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

// Write formats r with the named formatter and writes it to out.
func Write(out *os.File, name string, r *Result) error {
	name = Resolve(name, IsTerminal(out))
	formatter, err := Get(name)
	if err != nil {
		return err
	}

	var buf bytes.Buffer
	if err := formatter.Format(&buf, r); err != nil {
		return fmt.Errorf("formatting %s output: %w", name, err)
	}
	logger.Debug("writing output", "format", name, "rows", len(r.Rows), "bytes", buf.Len())
	_, err = out.Write(buf.Bytes())
	return err
}
