package relocate

import "slices"

// EntryState is the relocation status of one manifest entry.
type EntryState struct {
	Quarantined   bool
	StubInstalled bool
}

// State records which entries are currently quarantined or stubbed during a
// single run. It is created empty, mutated only by Relocator and
// StubInstaller as each step succeeds, and discarded when the run ends.
// It is not safe for concurrent use; runs are strictly sequential.
type State struct {
	entries map[string]*EntryState
	order   []string
}

// NewState returns an empty relocation state.
func NewState() *State {
	return &State{entries: make(map[string]*EntryState)}
}

func (s *State) get(sourcePath string) *EntryState {
	st, ok := s.entries[sourcePath]
	if !ok {
		st = &EntryState{}
		s.entries[sourcePath] = st
	}
	return st
}

func (s *State) markQuarantined(sourcePath string) {
	st := s.get(sourcePath)
	if st.Quarantined {
		return
	}
	st.Quarantined = true
	s.order = append(s.order, sourcePath)
}

func (s *State) markRestored(sourcePath string) {
	st := s.get(sourcePath)
	st.Quarantined = false
	st.StubInstalled = false
	s.order = slices.DeleteFunc(s.order, func(p string) bool { return p == sourcePath })
}

func (s *State) setStubInstalled(sourcePath string, installed bool) {
	s.get(sourcePath).StubInstalled = installed
}

// Lookup returns the state of the entry at sourcePath.
func (s *State) Lookup(sourcePath string) EntryState {
	if st, ok := s.entries[sourcePath]; ok {
		return *st
	}
	return EntryState{}
}

// IsQuarantined reports whether sourcePath currently sits in quarantine.
func (s *State) IsQuarantined(sourcePath string) bool {
	return s.Lookup(sourcePath).Quarantined
}

// StubInstalled reports whether a stub currently occupies sourcePath.
func (s *State) StubInstalled(sourcePath string) bool {
	return s.Lookup(sourcePath).StubInstalled
}

// Quarantined lists quarantined source paths in the order they were moved.
func (s *State) Quarantined() []string {
	return slices.Clone(s.order)
}

// RestoreOrder lists quarantined source paths last-moved first.
func (s *State) RestoreOrder() []string {
	out := slices.Clone(s.order)
	slices.Reverse(out)
	return out
}

// Len returns the number of entries currently quarantined.
func (s *State) Len() int {
	return len(s.order)
}
