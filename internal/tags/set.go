package tags

import (
	"bytes"
	"sync"

	"firestige.xyz/conntag/internal/core"
)

// Set interns tag strings to stable indexes for reporting. The static tag
// names occupy the first indexes, so a static code and its index coincide;
// dynamic tags are numbered after them in first-seen order.
type Set struct {
	mu    sync.Mutex
	set   map[string]uint32
	byIdx []string
}

// NewSet creates a Set seeded with the static tag names.
func NewSet() *Set {
	names := core.StaticTagNames()
	s := &Set{
		set:   make(map[string]uint32, len(names)),
		byIdx: names,
	}
	for i, name := range names {
		s.set[name] = uint32(i)
	}
	return s
}

// Add returns the index of tag, assigning the next free one if it is new.
func (s *Set) Add(tag string) uint32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addLocked(tag)
}

func (s *Set) addLocked(tag string) uint32 {
	if v, found := s.set[tag]; found {
		return v
	}
	v := uint32(len(s.byIdx))
	s.set[tag] = v
	s.byIdx = append(s.byIdx, tag)
	return v
}

// Indexes interns every tag region of t and returns their indexes.
func (s *Set) Indexes(t core.Tags) []uint32 {
	split := SplitTags(t)
	if len(split) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	r := make([]uint32, 0, len(split))
	for _, tag := range split {
		r = append(r, s.addLocked(tag))
	}
	return r
}

// Strings returns all interned tags ordered by index.
func (s *Set) Strings() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	r := make([]string, len(s.byIdx))
	copy(r, s.byIdx)
	return r
}

// Len returns the number of interned tags, static names included.
func (s *Set) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.byIdx)
}

// SplitTags splits a tag buffer into its NUL-separated regions.
func SplitTags(t core.Tags) []string {
	var r []string
	for _, region := range bytes.Split(t[:], []byte{0}) {
		if len(region) == 0 {
			continue
		}
		r = append(r, string(region))
	}
	return r
}
