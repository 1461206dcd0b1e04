package configdoc

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/sergi/go-diff/diffmatchpatch"
	"gopkg.in/yaml.v3"
)

// ChangeKind classifies a leaf difference.
type ChangeKind string

// Change kinds.
const (
	Added    ChangeKind = "added"
	Removed  ChangeKind = "removed"
	Modified ChangeKind = "modified"
)

// Change is one leaf that differs from the baseline. Lists and empty maps are
// compared as whole values.
type Change struct {
	Kind ChangeKind
	Path string
	Keys []string
	Old  any
	New  any
}

func (c Change) String() string {
	switch c.Kind {
	case Added:
		return fmt.Sprintf("+ %s: %v", c.Path, c.New)
	case Removed:
		return fmt.Sprintf("- %s: %v", c.Path, c.Old)
	default:
		return fmt.Sprintf("~ %s: %v -> %v", c.Path, c.Old, c.New)
	}
}

type leaf struct {
	keys  []string
	value any
}

// Diff lists leaf changes against the baseline: modifications and additions
// in current document order, then removals in baseline order.
func (d *Document) Diff() []Change {
	before := flatten(d.baseline)
	after := flatten(d.root)

	beforeByKey := make(map[string]leaf, len(before))
	for _, l := range before {
		beforeByKey[joinKey(l.keys)] = l
	}
	afterByKey := make(map[string]struct{}, len(after))

	var changes []Change
	for _, l := range after {
		k := joinKey(l.keys)
		afterByKey[k] = struct{}{}
		old, ok := beforeByKey[k]
		switch {
		case !ok:
			changes = append(changes, Change{Kind: Added, Path: strings.Join(l.keys, "."), Keys: l.keys, New: l.value})
		case !reflect.DeepEqual(old.value, l.value):
			changes = append(changes, Change{Kind: Modified, Path: strings.Join(l.keys, "."), Keys: l.keys, Old: old.value, New: l.value})
		}
	}
	for _, l := range before {
		if _, ok := afterByKey[joinKey(l.keys)]; !ok {
			changes = append(changes, Change{Kind: Removed, Path: strings.Join(l.keys, "."), Keys: l.keys, Old: l.value})
		}
	}
	return changes
}

// HasChanges reports whether the tree differs from the baseline.
func (d *Document) HasChanges() bool {
	return len(d.Diff()) > 0
}

func joinKey(keys []string) string {
	return strings.Join(keys, "\x00")
}

func flatten(root *yaml.Node) []leaf {
	var out []leaf
	var walk func(n *yaml.Node, keys []string)
	walk = func(n *yaml.Node, keys []string) {
		if n.Kind == yaml.MappingNode && len(n.Content) > 0 {
			for i := 0; i+1 < len(n.Content); i += 2 {
				next := make([]string, len(keys)+1)
				copy(next, keys)
				next[len(keys)] = n.Content[i].Value
				walk(n.Content[i+1], next)
			}
			return
		}
		if len(keys) == 0 {
			return
		}
		v, err := decode(n)
		if err != nil {
			v = n.Value
		}
		out = append(out, leaf{keys: keys, value: v})
	}
	walk(root, nil)
	return out
}

const diffContext = 3

// UnifiedDiff renders a unified diff of the baseline and current YAML.
// It returns "" when the renderings are identical.
func (d *Document) UnifiedDiff() (string, error) {
	before, err := render(d.baseline)
	if err != nil {
		return "", err
	}
	after, err := render(d.root)
	if err != nil {
		return "", err
	}
	return unifiedDiff("original config.yaml", "current config.yaml", string(before), string(after)), nil
}

type diffLine struct {
	op   diffmatchpatch.Operation
	text string
}

func unifiedDiff(fromName, toName, a, b string) string {
	if a == b {
		return ""
	}
	dmp := diffmatchpatch.New()
	ca, cb, lines := dmp.DiffLinesToChars(a, b)
	diffs := dmp.DiffCharsToLines(dmp.DiffMain(ca, cb, false), lines)

	var all []diffLine
	for _, df := range diffs {
		for _, line := range strings.SplitAfter(df.Text, "\n") {
			if line == "" {
				continue
			}
			all = append(all, diffLine{op: df.Type, text: strings.TrimSuffix(line, "\n")})
		}
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "--- %s\n+++ %s\n", fromName, toName)

	// oldNo/newNo are the 1-based line numbers of all[i] in each file.
	oldNo := make([]int, len(all)+1)
	newNo := make([]int, len(all)+1)
	o, n := 1, 1
	for i, l := range all {
		oldNo[i], newNo[i] = o, n
		switch l.op {
		case diffmatchpatch.DiffEqual:
			o++
			n++
		case diffmatchpatch.DiffDelete:
			o++
		case diffmatchpatch.DiffInsert:
			n++
		}
	}
	oldNo[len(all)], newNo[len(all)] = o, n

	i := 0
	for i < len(all) {
		if all[i].op == diffmatchpatch.DiffEqual {
			i++
			continue
		}
		start := max(i-diffContext, 0)
		end := i
		// Extend the hunk while the next change is within 2*context lines.
		for end < len(all) {
			if all[end].op != diffmatchpatch.DiffEqual {
				end++
				continue
			}
			run := end
			for run < len(all) && all[run].op == diffmatchpatch.DiffEqual {
				run++
			}
			if run < len(all) && run-end <= 2*diffContext {
				end = run
				continue
			}
			end = min(end+diffContext, len(all))
			break
		}

		var oldCount, newCount int
		for _, l := range all[start:end] {
			if l.op != diffmatchpatch.DiffInsert {
				oldCount++
			}
			if l.op != diffmatchpatch.DiffDelete {
				newCount++
			}
		}
		fmt.Fprintf(&sb, "@@ -%s +%s @@\n", hunkRange(oldNo[start], oldCount), hunkRange(newNo[start], newCount))
		for _, l := range all[start:end] {
			switch l.op {
			case diffmatchpatch.DiffEqual:
				sb.WriteString(" ")
			case diffmatchpatch.DiffDelete:
				sb.WriteString("-")
			case diffmatchpatch.DiffInsert:
				sb.WriteString("+")
			}
			sb.WriteString(l.text)
			sb.WriteString("\n")
		}
		i = end
	}
	return sb.String()
}

func hunkRange(start, count int) string {
	if count == 0 {
		return fmt.Sprintf("%d,0", start-1)
	}
	if count == 1 {
		return fmt.Sprintf("%d", start)
	}
	return fmt.Sprintf("%d,%d", start, count)
}
