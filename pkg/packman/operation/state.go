package operation

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/jamesainslie/packman/pkg/packman/fsutil"
)

// State is the persisted form of an Operation. It is rewritten after
// every mutation so a crash between two mutations can still be undone.
type State struct {
	NewPaths  []string          `json:"new_paths"`
	NewDirs   []string          `json:"new_dirs,omitempty"`
	TempPaths []string          `json:"temp_paths"`
	LastPath  *string           `json:"last_path"`
	Backups   map[string]string `json:"backups"`
}

// StatePath returns the recovery file of the operation called name.
func StatePath(scratchDir, name string) string {
	return filepath.Join(scratchDir, name+".json")
}

// LoadState reads a recovery file.
func LoadState(path string) (*State, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var st State
	if err := json.Unmarshal(data, &st); err != nil {
		return nil, fmt.Errorf("decoding %s: %w", path, err)
	}
	if st.Backups == nil {
		st.Backups = map[string]string{}
	}
	return &st, nil
}

func (s *State) write(path string) error {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return err
	}
	return fsutil.WriteFileAtomic(path, data, 0o644)
}

// pathSet is an insertion-ordered set of paths.
type pathSet struct {
	order []string
	index map[string]struct{}
}

func newPathSet(paths ...string) *pathSet {
	s := &pathSet{index: make(map[string]struct{}, len(paths))}
	for _, p := range paths {
		s.add(p)
	}
	return s
}

func (s *pathSet) add(p string) {
	if _, ok := s.index[p]; ok {
		return
	}
	s.index[p] = struct{}{}
	s.order = append(s.order, p)
}

func (s *pathSet) has(p string) bool {
	_, ok := s.index[p]
	return ok
}

func (s *pathSet) remove(p string) {
	if _, ok := s.index[p]; !ok {
		return
	}
	delete(s.index, p)
	for i, q := range s.order {
		if q == p {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
}

func (s *pathSet) slice() []string {
	out := make([]string, len(s.order))
	copy(out, s.order)
	return out
}

func (s *pathSet) len() int { return len(s.order) }

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
