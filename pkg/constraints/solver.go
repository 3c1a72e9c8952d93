package constraints

// Solve freezes the graph and computes the greatest fixpoint: every unknown
// starts at Ptr and is lowered only as far as its edges require. Calling
// Solve again recomputes from the frozen edge set and yields the same
// assignment.
func (g *Graph) Solve() {
	if g.state == stateMerged {
		panic("constraints: Solve on a graph merged into another")
	}
	g.state = stateSolved

	s := newSolver(g)
	s.run()
	g.values = s.values
	g.fired = s.fired
}

type solver struct {
	g      *Graph
	values []Class
	edges  []Geq
	// byRhs indexes edges by their right side: lowering an atom revisits
	// the edges reading it.
	byRhs     map[AtomID][]int
	byPremise map[AtomID][]int
	fired     []Geq
	didFire   []bool
	work      []int
	queued    []bool
}

func newSolver(g *Graph) *solver {
	s := &solver{
		g:         g,
		values:    make([]Class, len(g.atoms)),
		edges:     make([]Geq, 0, len(g.geqs)),
		byRhs:     make(map[AtomID][]int),
		byPremise: make(map[AtomID][]int),
		didFire:   make([]bool, len(g.implies)),
	}
	for i := range s.values {
		s.values[i] = Ptr
	}
	for i, imp := range g.implies {
		s.byPremise[imp.Premise.Lhs] = append(s.byPremise[imp.Premise.Lhs], i)
	}
	for _, e := range g.geqs {
		s.addEdge(e)
	}
	return s
}

func (s *solver) value(a AtomID) Class {
	if a.IsConst() {
		return Class(a)
	}
	return s.values[a-firstUnknown]
}

func (s *solver) addEdge(e Geq) {
	idx := len(s.edges)
	s.edges = append(s.edges, e)
	s.queued = append(s.queued, false)
	if e.Rhs.IsUnknown() {
		s.byRhs[e.Rhs] = append(s.byRhs[e.Rhs], idx)
	}
	s.enqueue(idx)
}

func (s *solver) enqueue(idx int) {
	if s.queued[idx] {
		return
	}
	s.queued[idx] = true
	s.work = append(s.work, idx)
}

func (s *solver) run() {
	// Premises that hold before any propagation.
	for i := range s.g.implies {
		s.tryFire(i)
	}
	for len(s.work) > 0 {
		idx := s.work[0]
		s.work = s.work[1:]
		s.queued[idx] = false

		e := s.edges[idx]
		lhs, rhs := s.value(e.Lhs), s.value(e.Rhs)
		if lhs <= rhs {
			continue
		}
		s.values[e.Lhs-firstUnknown] = rhs
		for _, dep := range s.byRhs[e.Lhs] {
			s.enqueue(dep)
		}
		for _, imp := range s.byPremise[e.Lhs] {
			s.tryFire(imp)
		}
	}
}

func (s *solver) tryFire(i int) {
	if s.didFire[i] {
		return
	}
	imp := s.g.implies[i]
	if s.value(imp.Premise.Lhs) > s.value(imp.Premise.Rhs) {
		return
	}
	s.didFire[i] = true
	s.fired = append(s.fired, imp.Conclusion)
	s.addEdge(imp.Conclusion)
}
