// Package output renders packman's listings (available packages, installed
// packages, versions, cache entries) in the formats selected with
// --format: table, plain, tsv, csv, markdown, json and yaml.
//
// Formatters are looked up by name in a registry:
//
//	formatter, err := output.Get("table")
//	if err != nil {
//	    return err
//	}
//	var buf bytes.Buffer
//	if err := formatter.Format(&buf, listing); err != nil {
//	    return err
//	}
package output

import (
	"bytes"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Listing is a list of records sharing the same columns.
type Listing struct {
	// Title is shown above the table by formatters meant for people.
	Title string
	// Columns holds the record keys, in display order.
	Columns []string
	// Rows holds one value per column for each record.
	Rows [][]string
	// Empty is shown by the table formatter instead of an empty table.
	Empty string
}

// NewListing returns an empty listing with columns.
func NewListing(title string, columns ...string) *Listing {
	return &Listing{Title: title, Columns: columns}
}

// Add appends a record. Missing trailing values are left empty.
func (l *Listing) Add(values ...string) {
	row := make([]string, len(l.Columns))
	copy(row, values)
	l.Rows = append(l.Rows, row)
}

// Headers returns the column titles: keys upper-cased with '_' as space.
func (l *Listing) Headers() []string {
	out := make([]string, len(l.Columns))
	for i, c := range l.Columns {
		out[i] = strings.ToUpper(strings.ReplaceAll(c, "_", " "))
	}
	return out
}

// Records returns the rows keyed by column.
func (l *Listing) Records() []map[string]string {
	out := make([]map[string]string, len(l.Rows))
	for i, row := range l.Rows {
		rec := make(map[string]string, len(l.Columns))
		for j, c := range l.Columns {
			rec[c] = row[j]
		}
		out[i] = rec
	}
	return out
}

// Formatter renders a listing.
type Formatter interface {
	Format(w *bytes.Buffer, l *Listing) error
}

// FormatterFactory creates a Formatter.
type FormatterFactory func() Formatter

// Registry maps format names to formatters.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]FormatterFactory
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]FormatterFactory)}
}

// Register adds a formatter, replacing any previous one of the same name.
func (r *Registry) Register(name string, factory FormatterFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[name] = factory
}

// Get returns a new formatter by name.
func (r *Registry) Get(name string) (Formatter, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	factory, ok := r.factories[name]
	if !ok {
		return nil, fmt.Errorf("unknown format %q (available: %s)", name, strings.Join(r.available(), ", "))
	}
	return factory(), nil
}

// Available returns the registered format names, sorted.
func (r *Registry) Available() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.available()
}

func (r *Registry) available() []string {
	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// DefaultRegistry holds the built-in formats.
var DefaultRegistry = NewRegistry()

// Register adds a formatter to the default registry.
func Register(name string, factory FormatterFactory) {
	DefaultRegistry.Register(name, factory)
}

// Get returns a formatter from the default registry.
func Get(name string) (Formatter, error) {
	return DefaultRegistry.Get(name)
}

// Available returns the default registry's format names.
func Available() []string {
	return DefaultRegistry.Available()
}
