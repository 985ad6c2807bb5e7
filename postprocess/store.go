package postprocess

import (
	"fmt"

	"github.com/swdee/go-trafficvision/detector"
)

// Store keeps the last known result of every junction.  A nil entry means
// the junction has never been inferred.  It is owned by the driving loop and
// is not safe for concurrent use.
type Store struct {
	results []*JunctionResult
}

// NewStore returns a store for n junctions
func NewStore(n int) *Store {
	return &Store{results: make([]*JunctionResult, n)}
}

// Len returns the number of junctions
func (s *Store) Len() int {
	return len(s.results)
}

// Get returns the stored result of junction i or nil
func (s *Store) Get(i int) *JunctionResult {

	if i < 0 || i >= len(s.results) {
		return nil
	}

	return s.results[i]
}

// All returns the stored results indexed by junction
func (s *Store) All() []*JunctionResult {
	return s.results
}

// Apply projects one batch of detections and replaces the results of the
// junctions present in the batch.  Junctions not in the batch keep their
// previous result.  Nothing is stored if the detections do not line up with
// the batch.
func (s *Store) Apply(p *Projector, batch *detector.Batch, dets [][]detector.Detection) error {

	if len(dets) != batch.Len() {
		return fmt.Errorf("%d detection sets for batch of %d", len(dets), batch.Len())
	}

	fresh := make([]*JunctionResult, batch.Len())

	for i, e := range batch.Entries() {

		if e.Index < 0 || e.Index >= len(s.results) {
			return fmt.Errorf("junction index %d out of range [0-%d)", e.Index, len(s.results))
		}

		fresh[i] = p.Project(dets[i], e.Width, e.Height)
	}

	for i, e := range batch.Entries() {
		s.results[e.Index] = fresh[i]
	}

	return nil
}
