// Package configdoc holds the rehosting configuration tree that the mutation
// tools edit between engine runs.
//
// The tree is a yaml.Node document so that section and key order survive a
// load/save cycle. Values cross the package boundary as plain Go values
// (string, int, bool, map[string]any, []any, nil).
package configdoc

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"reflect"
	"strings"

	"gopkg.in/yaml.v3"
)

// ErrNotMapping is returned when a path walks through a non-map value.
var ErrNotMapping = errors.New("path traverses a non-map value")

// Document is an in-memory configuration tree bound to a file.
type Document struct {
	path     string
	exists   bool
	root     *yaml.Node // mapping node
	baseline *yaml.Node
}

// New returns an empty document that will be saved to path.
func New(path string) *Document {
	d := &Document{path: path, root: &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}}
	d.Snapshot()
	return d
}

// Load reads the document at path. A missing file yields an empty document.
func Load(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return New(path), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	d, err := Parse(path, data)
	if err != nil {
		return nil, err
	}
	d.exists = true
	return d, nil
}

// Parse builds a document from YAML bytes without touching the filesystem.
func Parse(path string, data []byte) (*Document, error) {
	d := New(path)
	if len(bytes.TrimSpace(data)) == 0 {
		return d, nil
	}
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	if doc.Kind == yaml.DocumentNode && len(doc.Content) > 0 {
		switch doc.Content[0].Kind {
		case yaml.MappingNode:
			d.root = doc.Content[0]
		case yaml.ScalarNode:
			if doc.Content[0].Tag != "!!null" {
				return nil, fmt.Errorf("%s: top level must be a map", path)
			}
		default:
			return nil, fmt.Errorf("%s: top level must be a map", path)
		}
	}
	d.Snapshot()
	return d, nil
}

// Path is the file the document is bound to.
func (d *Document) Path() string { return d.path }

// Exists reports whether the file was present on disk at load or has been saved.
func (d *Document) Exists() bool { return d.exists }

// SplitPath splits a dotted path. Keys containing dots must use the *At variants.
func SplitPath(path string) []string {
	if path == "" {
		return nil
	}
	return strings.Split(path, ".")
}

// Get returns the value at a dotted path.
func (d *Document) Get(path string) (any, bool) {
	return d.GetAt(SplitPath(path)...)
}

// GetAt returns the value at the given key sequence.
func (d *Document) GetAt(keys ...string) (any, bool) {
	n := lookup(d.root, keys)
	if n == nil {
		return nil, false
	}
	v, err := decode(n)
	if err != nil {
		return nil, false
	}
	return v, true
}

// Has reports whether a value exists at the key sequence.
func (d *Document) Has(keys ...string) bool {
	return lookup(d.root, keys) != nil
}

// Set stores v at a dotted path, creating intermediate maps.
func (d *Document) Set(path string, v any) error {
	return d.SetAt(SplitPath(path), v)
}

// SetAt stores v at the key sequence, creating intermediate maps. A null or
// empty intermediate value is replaced by a map.
func (d *Document) SetAt(keys []string, v any) error {
	if len(keys) == 0 {
		return fmt.Errorf("empty path")
	}
	parent, err := ensureMapping(d.root, keys[:len(keys)-1])
	if err != nil {
		return err
	}
	node, err := encode(v)
	if err != nil {
		return err
	}
	last := keys[len(keys)-1]
	if i := keyIndex(parent, last); i >= 0 {
		parent.Content[i+1] = node
		return nil
	}
	parent.Content = append(parent.Content, keyNode(last), node)
	return nil
}

// Remove deletes the value at a dotted path and reports whether it existed.
func (d *Document) Remove(path string) bool {
	return d.RemoveAt(SplitPath(path)...)
}

// RemoveAt deletes the value at the key sequence and reports whether it existed.
func (d *Document) RemoveAt(keys ...string) bool {
	if len(keys) == 0 {
		return false
	}
	parent := lookup(d.root, keys[:len(keys)-1])
	if parent == nil || parent.Kind != yaml.MappingNode {
		return false
	}
	i := keyIndex(parent, keys[len(keys)-1])
	if i < 0 {
		return false
	}
	parent.Content = append(parent.Content[:i], parent.Content[i+2:]...)
	return true
}

// AppendToList appends v to the list at path, creating the list if absent.
func (d *Document) AppendToList(path string, v any) error {
	keys := SplitPath(path)
	if len(keys) == 0 {
		return fmt.Errorf("empty path")
	}
	node, err := encode(v)
	if err != nil {
		return err
	}
	existing := lookup(d.root, keys)
	switch {
	case existing == nil || isNull(existing):
		return d.SetAt(keys, []any{v})
	case existing.Kind != yaml.SequenceNode:
		return fmt.Errorf("%s is not a list", path)
	}
	existing.Content = append(existing.Content, node)
	return nil
}

// RemoveFromList removes the first element of the list at path equal to v.
func (d *Document) RemoveFromList(path string, v any) (bool, error) {
	existing := lookup(d.root, SplitPath(path))
	if existing == nil {
		return false, nil
	}
	if existing.Kind != yaml.SequenceNode {
		return false, fmt.Errorf("%s is not a list", path)
	}
	want, err := normalize(v)
	if err != nil {
		return false, err
	}
	for i, item := range existing.Content {
		got, err := decode(item)
		if err != nil {
			continue
		}
		if reflect.DeepEqual(got, want) {
			existing.Content = append(existing.Content[:i], existing.Content[i+1:]...)
			return true, nil
		}
	}
	return false, nil
}

// Sections lists the top-level keys in document order.
func (d *Document) Sections() []string {
	var out []string
	for i := 0; i+1 < len(d.root.Content); i += 2 {
		out = append(out, d.root.Content[i].Value)
	}
	return out
}

// Bytes renders the document as YAML with two-space indentation.
func (d *Document) Bytes() ([]byte, error) {
	return render(d.root)
}

// Save persists the document to its path.
func (d *Document) Save() error {
	data, err := d.Bytes()
	if err != nil {
		return err
	}
	if err := os.WriteFile(d.path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", d.path, err)
	}
	d.exists = true
	return nil
}

// Snapshot makes the current tree the diff baseline.
func (d *Document) Snapshot() {
	d.baseline = clone(d.root)
}

func render(root *yaml.Node) ([]byte, error) {
	if len(root.Content) == 0 {
		return []byte("{}\n"), nil
	}
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(root); err != nil {
		return nil, fmt.Errorf("failed to encode config: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("failed to encode config: %w", err)
	}
	return buf.Bytes(), nil
}

func lookup(n *yaml.Node, keys []string) *yaml.Node {
	for _, k := range keys {
		if n == nil || n.Kind != yaml.MappingNode {
			return nil
		}
		i := keyIndex(n, k)
		if i < 0 {
			return nil
		}
		n = n.Content[i+1]
	}
	return n
}

func ensureMapping(n *yaml.Node, keys []string) (*yaml.Node, error) {
	for depth, k := range keys {
		i := keyIndex(n, k)
		if i < 0 {
			child := &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
			n.Content = append(n.Content, keyNode(k), child)
			n = child
			continue
		}
		child := n.Content[i+1]
		switch {
		case child.Kind == yaml.MappingNode:
		case isNull(child):
			child = &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
			n.Content[i+1] = child
		default:
			return nil, fmt.Errorf("%s: %w", strings.Join(keys[:depth+1], "."), ErrNotMapping)
		}
		n = child
	}
	return n, nil
}

func keyIndex(m *yaml.Node, key string) int {
	for i := 0; i+1 < len(m.Content); i += 2 {
		if m.Content[i].Value == key {
			return i
		}
	}
	return -1
}

func keyNode(k string) *yaml.Node {
	return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: k}
}

func isNull(n *yaml.Node) bool {
	return n.Kind == yaml.ScalarNode && (n.Tag == "!!null" || (n.Tag == "" && n.Value == ""))
}

func encode(v any) (*yaml.Node, error) {
	var n yaml.Node
	if err := n.Encode(v); err != nil {
		return nil, fmt.Errorf("failed to encode value: %w", err)
	}
	return &n, nil
}

func decode(n *yaml.Node) (any, error) {
	var v any
	if err := n.Decode(&v); err != nil {
		return nil, err
	}
	return v, nil
}

// normalize converts v to the shape decode produces, so values built in Go
// compare equal to values read back from the tree.
func normalize(v any) (any, error) {
	n, err := encode(v)
	if err != nil {
		return nil, err
	}
	return decode(n)
}

func clone(n *yaml.Node) *yaml.Node {
	if n == nil {
		return nil
	}
	c := *n
	if len(n.Content) > 0 {
		c.Content = make([]*yaml.Node, len(n.Content))
		for i, child := range n.Content {
			c.Content[i] = clone(child)
		}
	}
	return &c
}
