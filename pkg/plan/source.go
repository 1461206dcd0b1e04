package plan

// Source is one named section of round context, such as "console.log" or
// "penguin_results". Sources are kept in the order they were collected.
type Source struct {
	Name    string `json:"name"`
	Content string `json:"content"`
}

// Sources is an ordered list of context sections.
type Sources []Source

// Get returns the content of the first source called name.
func (s Sources) Get(name string) (string, bool) {
	for _, src := range s {
		if src.Name == name {
			return src.Content, true
		}
	}
	return "", false
}

// Has reports whether a source called name exists.
func (s Sources) Has(name string) bool {
	_, ok := s.Get(name)
	return ok
}

// Names lists the source names in order.
func (s Sources) Names() []string {
	names := make([]string, 0, len(s))
	for _, src := range s {
		names = append(names, src.Name)
	}
	return names
}
