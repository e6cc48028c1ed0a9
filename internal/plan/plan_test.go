package plan

import (
	"reflect"
	"sort"
	"testing"
)

func TestSplit(t *testing.T) {
	tests := []struct {
		name       string
		produced   []string
		candidates []string
		toZip      []string
		notToZip   []string
	}{
		{
			name:       "mixed",
			produced:   []string{"calexp", "src", "schema"},
			candidates: []string{"src", "schema"},
			toZip:      []string{"schema", "src"},
			notToZip:   []string{"calexp"},
		},
		{
			name:       "no candidates produced",
			produced:   []string{"calexp", "src"},
			candidates: []string{"deepCoadd"},
			toZip:      []string{},
			notToZip:   []string{"calexp", "src"},
		},
		{
			name:       "empty config",
			produced:   []string{"b", "a"},
			candidates: nil,
			toZip:      []string{},
			notToZip:   []string{"a", "b"},
		},
		{
			name:       "everything zipped",
			produced:   []string{"src", "calexp"},
			candidates: []string{"calexp", "src", "unused"},
			toZip:      []string{"calexp", "src"},
			notToZip:   []string{},
		},
		{
			name:       "duplicates collapse",
			produced:   []string{"src", "src", "calexp", "calexp"},
			candidates: []string{"src", "src"},
			toZip:      []string{"src"},
			notToZip:   []string{"calexp"},
		},
		{
			name:       "nothing produced",
			produced:   nil,
			candidates: []string{"src"},
			toZip:      []string{},
			notToZip:   []string{},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := Split(tt.produced, tt.candidates)
			if !reflect.DeepEqual(p.ToZip, tt.toZip) {
				t.Fatalf("ToZip=%v, expected %v", p.ToZip, tt.toZip)
			}
			if !reflect.DeepEqual(p.NotToZip, tt.notToZip) {
				t.Fatalf("NotToZip=%v, expected %v", p.NotToZip, tt.notToZip)
			}
		})
	}
}

func TestSplitCoversProducedDisjointly(t *testing.T) {
	produced := []string{"z", "calexp", "src", "schema", "a_b", "A"}
	candidates := []string{"A", "src", "missing", "z"}
	p := Split(produced, candidates)

	inZip := map[string]bool{}
	for _, n := range p.ToZip {
		inZip[n] = true
	}
	for _, n := range p.NotToZip {
		if inZip[n] {
			t.Fatalf("%q in both halves", n)
		}
	}
	union := append(append([]string{}, p.ToZip...), p.NotToZip...)
	sort.Strings(union)
	want := append([]string{}, produced...)
	sort.Strings(want)
	if !reflect.DeepEqual(union, want) {
		t.Fatalf("union=%v, expected %v", union, want)
	}
	if !sort.StringsAreSorted(p.ToZip) || !sort.StringsAreSorted(p.NotToZip) {
		t.Fatalf("halves not sorted: %+v", p)
	}
	if p.Empty() {
		t.Fatal("expected non-empty zip half")
	}
}
