package plan

import "sort"

// Partition splits the dataset types produced by a graph into the ones bundled as zips
// and the ones transferred individually. Both lists are sorted and disjoint.
type Partition struct {
	ToZip    []string `json:"to_zip" yaml:"to_zip"`
	NotToZip []string `json:"not_to_zip" yaml:"not_to_zip"`
}

// Split returns to_zip = produced ∩ candidates and not_to_zip = produced − candidates.
// Candidates that the graph does not produce are ignored.
func Split(produced, candidates []string) Partition {
	want := make(map[string]struct{}, len(candidates))
	for _, c := range candidates {
		want[c] = struct{}{}
	}
	seen := make(map[string]struct{}, len(produced))
	p := Partition{ToZip: []string{}, NotToZip: []string{}}
	for _, name := range produced {
		if _, dup := seen[name]; dup {
			continue
		}
		seen[name] = struct{}{}
		if _, ok := want[name]; ok {
			p.ToZip = append(p.ToZip, name)
		} else {
			p.NotToZip = append(p.NotToZip, name)
		}
	}
	sort.Strings(p.ToZip)
	sort.Strings(p.NotToZip)
	return p
}

// Empty reports whether nothing needs zipping.
func (p Partition) Empty() bool { return len(p.ToZip) == 0 }
