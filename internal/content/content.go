// Package content holds the fixed texts, images and videos shown for each label.
package content

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"os"
	"slices"
	"strings"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

// MaxItems is how many items of each kind an entry keeps.
const MaxItems = 3

//go:embed content.yaml
var defaultContent []byte

// Entry is the content registered for one label.
type Entry struct {
	Texts  []string `json:"texts"`
	Images []string `json:"images"`
	Videos []string `json:"videos"`
}

// IsEmpty reports whether the entry has nothing to show.
func (e Entry) IsEmpty() bool {
	return len(e.Texts) == 0 && len(e.Images) == 0 && len(e.Videos) == 0
}

// Table maps labels to content. It is immutable once built.
type Table struct {
	entries map[string]Entry
}

// NewTable builds a table, cleaning every list with PickTop3.
func NewTable(entries map[string]Entry) *Table {
	t := &Table{entries: make(map[string]Entry, len(entries))}
	for label, e := range entries {
		t.entries[label] = Entry{
			Texts:  PickTop3(e.Texts),
			Images: PickTop3(e.Images),
			Videos: PickTop3(e.Videos),
		}
	}
	return t
}

// Lookup returns the entry for label, or an entry with three empty lists.
func (t *Table) Lookup(label string) Entry {
	e, ok := t.entries[label]
	if !ok {
		return Entry{Texts: []string{}, Images: []string{}, Videos: []string{}}
	}
	return Entry{
		Texts:  append([]string{}, e.Texts...),
		Images: append([]string{}, e.Images...),
		Videos: append([]string{}, e.Videos...),
	}
}

// Len is the number of labels with registered content.
func (t *Table) Len() int {
	return len(t.entries)
}

// PickTop3 drops empty and whitespace-only strings and keeps the first three.
func PickTop3(items []string) []string {
	out := make([]string, 0, MaxItems)
	for _, s := range items {
		if len(out) == MaxItems {
			break
		}
		if strings.TrimSpace(s) == "" {
			continue
		}
		out = append(out, s)
	}
	return out
}

type rawEntry struct {
	Label  *string  `yaml:"label"`
	Index  *int     `yaml:"index"`
	Texts  []string `yaml:"texts"`
	Images []string `yaml:"images"`
	Videos []string `yaml:"videos"`
}

type document struct {
	Entries []rawEntry `yaml:"entries"`
}

// Load builds the table from the YAML file at path, or from the built-in
// content when path is empty. labels resolves index-keyed entries.
func Load(path string, labels []string, log zerolog.Logger) (*Table, error) {
	data := defaultContent
	if path != "" {
		var err error
		if data, err = os.ReadFile(path); err != nil {
			return nil, fmt.Errorf("read content file: %w", err)
		}
	}
	return Parse(data, labels, log)
}

// Parse builds a table from YAML. Every entry names either a label or an
// index into labels; an unknown label or out-of-range index is skipped, a key
// defined twice is an error.
func Parse(data []byte, labels []string, log zerolog.Logger) (*Table, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var doc document
	if err := dec.Decode(&doc); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parse content: %w", err)
	}

	entries := make(map[string]Entry, len(doc.Entries))
	for i, raw := range doc.Entries {
		var label string
		switch {
		case raw.Label != nil && raw.Index != nil:
			return nil, fmt.Errorf("content entry %d sets both label and index", i)
		case raw.Label != nil:
			label = *raw.Label
			if !slices.Contains(labels, label) {
				log.Warn().Str("label", label).Msg("content entry label is not a model label, skipping")
				continue
			}
		case raw.Index != nil:
			idx := *raw.Index
			if idx < 0 || idx >= len(labels) {
				log.Warn().Int("index", idx).Int("labels", len(labels)).Msg("content entry index out of range, skipping")
				continue
			}
			label = labels[idx]
		default:
			return nil, fmt.Errorf("content entry %d sets neither label nor index", i)
		}

		if _, dup := entries[label]; dup {
			return nil, fmt.Errorf("content for label %q is defined more than once", label)
		}
		entries[label] = Entry{Texts: raw.Texts, Images: raw.Images, Videos: raw.Videos}
	}

	return NewTable(entries), nil
}
