package catalog

import "sort"

// Staleness compares the corpus on disk with a recorded build.
type Staleness struct {
	Added   []string `json:"added"`
	Changed []string `json:"changed"`
	Removed []string `json:"removed"`
}

// Stale reports whether any file was added, changed or removed.
func (s Staleness) Stale() bool {
	return len(s.Added)+len(s.Changed)+len(s.Removed) > 0
}

// Compare diffs the recorded documents against current, a map of file name
// to fingerprint. Names in each list are sorted.
func Compare(recorded []DocumentRecord, current map[string]string) Staleness {
	s := Staleness{Added: []string{}, Changed: []string{}, Removed: []string{}}
	seen := make(map[string]bool, len(recorded))
	for _, d := range recorded {
		seen[d.Name] = true
		fp, ok := current[d.Name]
		switch {
		case !ok:
			s.Removed = append(s.Removed, d.Name)
		case fp != d.Fingerprint:
			s.Changed = append(s.Changed, d.Name)
		}
	}
	for name := range current {
		if !seen[name] {
			s.Added = append(s.Added, name)
		}
	}
	sort.Strings(s.Added)
	sort.Strings(s.Changed)
	sort.Strings(s.Removed)
	return s
}
