package configdoc

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// SectionInfo counts the entries in one top-level section.
type SectionInfo struct {
	Name  string
	Items int
}

// Summary is a compact description of the document for console output.
type Summary struct {
	FilePath   string
	Exists     bool
	HasChanges bool
	Sections   []SectionInfo
}

// Summary describes the document's sections and whether it has changed.
func (d *Document) Summary() Summary {
	s := Summary{FilePath: d.path, Exists: d.exists, HasChanges: d.HasChanges()}
	for i := 0; i+1 < len(d.root.Content); i += 2 {
		s.Sections = append(s.Sections, SectionInfo{
			Name:  d.root.Content[i].Value,
			Items: itemCount(d.root.Content[i+1]),
		})
	}
	return s
}

func itemCount(n *yaml.Node) int {
	switch n.Kind {
	case yaml.MappingNode:
		return len(n.Content) / 2
	case yaml.SequenceNode:
		return len(n.Content)
	default:
		if isNull(n) {
			return 0
		}
		return 1
	}
}

func (s Summary) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "📁 File: %s\n", s.FilePath)
	fmt.Fprintf(&sb, "   Exists: %t\n", s.Exists)
	fmt.Fprintf(&sb, "   Has changes: %t\n", s.HasChanges)
	names := make([]string, len(s.Sections))
	for i, sec := range s.Sections {
		names[i] = sec.Name
	}
	fmt.Fprintf(&sb, "   Sections: %s\n", strings.Join(names, ", "))
	for _, sec := range s.Sections {
		fmt.Fprintf(&sb, "   - %s: %d items\n", sec.Name, sec.Items)
	}
	return sb.String()
}
