// Package skim holds the precomputed origin-destination matrices (travel
// distance, time, cost) referenced by utility expressions, keyed by zone
// pair. Matrices are loaded once per model run and read concurrently without
// locking; nothing mutates them during evaluation.
package skim

import (
	"sort"

	"github.com/rotisserie/eris"
)

// Cell is one origin-destination entry, the unit of long-form storage.
type Cell struct {
	Origin      int
	Destination int
	Value       float64
}

// Matrix is a dense square matrix over a fixed zone index.
type Matrix struct {
	name  string
	zones []int
	index map[int]int
	data  []float64
}

// NewMatrix allocates a zero-filled matrix over the given zone IDs.
func NewMatrix(name string, zones []int) (*Matrix, error) {
	if name == "" {
		return nil, eris.New("skim: matrix name required")
	}
	if len(zones) == 0 {
		return nil, eris.Errorf("skim %s: no zones", name)
	}

	sorted := append([]int(nil), zones...)
	sort.Ints(sorted)

	index := make(map[int]int, len(sorted))
	for i, z := range sorted {
		if _, dup := index[z]; dup {
			return nil, eris.Errorf("skim %s: duplicate zone %d", name, z)
		}
		index[z] = i
	}

	return &Matrix{
		name:  name,
		zones: sorted,
		index: index,
		data:  make([]float64, len(sorted)*len(sorted)),
	}, nil
}

// FromCells builds a matrix over the union of zones seen in cells.
func FromCells(name string, cells []Cell) (*Matrix, error) {
	seen := make(map[int]bool)
	var zones []int
	for _, c := range cells {
		for _, z := range []int{c.Origin, c.Destination} {
			if !seen[z] {
				seen[z] = true
				zones = append(zones, z)
			}
		}
	}

	m, err := NewMatrix(name, zones)
	if err != nil {
		return nil, err
	}
	for _, c := range cells {
		if err := m.SetValue(c.Origin, c.Destination, c.Value); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// Name returns the matrix name used in skims['NAME'] expressions.
func (m *Matrix) Name() string { return m.name }

// Zones returns the sorted zone IDs the matrix covers.
func (m *Matrix) Zones() []int { return m.zones }

// SetValue stores the cell for an origin-destination pair. Only valid during
// loading, before the matrix is shared.
func (m *Matrix) SetValue(orig, dest int, v float64) error {
	oi, ok := m.index[orig]
	if !ok {
		return eris.Errorf("skim %s: unknown origin zone %d", m.name, orig)
	}
	di, ok := m.index[dest]
	if !ok {
		return eris.Errorf("skim %s: unknown destination zone %d", m.name, dest)
	}
	m.data[oi*len(m.zones)+di] = v
	return nil
}

// Value returns the cell for an origin-destination pair.
func (m *Matrix) Value(orig, dest int) (float64, bool) {
	oi, ok := m.index[orig]
	if !ok {
		return 0, false
	}
	di, ok := m.index[dest]
	if !ok {
		return 0, false
	}
	return m.data[oi*len(m.zones)+di], true
}

// Cells flattens the matrix back to long form, row-major, for persistence.
func (m *Matrix) Cells() []Cell {
	n := len(m.zones)
	cells := make([]Cell, 0, n*n)
	for oi, o := range m.zones {
		for di, d := range m.zones {
			cells = append(cells, Cell{Origin: o, Destination: d, Value: m.data[oi*n+di]})
		}
	}
	return cells
}

// Set is a collection of named matrices sharing one zone system.
type Set struct {
	matrices map[string]*Matrix
}

// NewSet returns an empty skim set.
func NewSet() *Set {
	return &Set{matrices: make(map[string]*Matrix)}
}

// Add registers a matrix under its name.
func (s *Set) Add(m *Matrix) error {
	if _, dup := s.matrices[m.name]; dup {
		return eris.Errorf("skim: duplicate matrix %q", m.name)
	}
	s.matrices[m.name] = m
	return nil
}

// Matrix returns the named matrix.
func (s *Set) Matrix(name string) (*Matrix, bool) {
	m, ok := s.matrices[name]
	return m, ok
}

// Names returns the matrix names in sorted order, for reproducible logging.
func (s *Set) Names() []string {
	names := make([]string, 0, len(s.matrices))
	for name := range s.matrices {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Pair is a read-only view of every matrix in the set at one
// origin-destination pair. It supplies the skim side of an expression
// context for that pair.
type Pair struct {
	set  *Set
	orig int
	dest int
}

// Pair binds the set to an origin-destination pair.
func (s *Set) Pair(orig, dest int) Pair {
	return Pair{set: s, orig: orig, dest: dest}
}

// Skim resolves skims['NAME'] for the bound pair.
func (p Pair) Skim(name string) (float64, bool) {
	m, ok := p.set.matrices[name]
	if !ok {
		return 0, false
	}
	return m.Value(p.orig, p.dest)
}
