// Package tracker implements the ByteTrack multi object tracker, assigning
// identities that persist across frames to per frame detections.
package tracker

import (
	"fmt"
)

const (
	// lowMatchThresh is the IoU distance limit when associating low score
	// detections with remaining tracked objects
	lowMatchThresh = 0.5
	// unconfirmedMatchThresh is the IoU distance limit when associating
	// detections with tracks that have not been confirmed yet
	unconfirmedMatchThresh = 0.7
	// duplicateThresh is the IoU distance under which a tracked and lost
	// track are considered the same object
	duplicateThresh = 0.15
)

// ByteTrack associates detections across frames using two stage matching,
// first against high confidence detections then against low confidence ones
type ByteTrack struct {
	kf *Kalman
	// trackThresh splits detections into high and low confidence
	trackThresh float64
	// highThresh is the minimum confidence to start a new track
	highThresh float64
	// matchThresh is the IoU distance limit for the first association
	matchThresh float64
	// maxTimeLost is the number of frames a lost track is kept for
	maxTimeLost int

	frameID int
	nextID  int

	tracked []*Track
	lost    []*Track
	removed []*Track
}

// NewByteTrack returns a tracker.  frameRate and trackBuffer determine how
// many frames a lost object is remembered for.
func NewByteTrack(frameRate, trackBuffer int, trackThresh, highThresh,
	matchThresh float64) *ByteTrack {

	return &ByteTrack{
		kf:          NewKalman(1.0/20, 1.0/160),
		trackThresh: trackThresh,
		highThresh:  highThresh,
		matchThresh: matchThresh,
		maxTimeLost: int(float64(frameRate) / 30.0 * float64(trackBuffer)),
	}
}

// Reset forgets all tracks and restarts ids from 1
func (bt *ByteTrack) Reset() {
	bt.frameID = 0
	bt.nextID = 0
	bt.tracked = nil
	bt.lost = nil
	bt.removed = nil
}

// Update processes the detections of one frame and returns the confirmed
// tracks that were associated with a detection in this frame
func (bt *ByteTrack) Update(objects []Object) ([]*Track, error) {

	bt.frameID++

	// split detections by confidence
	var high, low []*Track

	for _, obj := range objects {
		t := newTrack(bt.kf, obj)

		if obj.Score >= bt.trackThresh {
			high = append(high, t)
		} else {
			low = append(low, t)
		}
	}

	var confirmed, unconfirmed []*Track

	for _, t := range bt.tracked {
		if t.IsActivated() {
			confirmed = append(confirmed, t)
		} else {
			unconfirmed = append(unconfirmed, t)
		}
	}

	pool := joinTracks(confirmed, bt.lost)

	for _, t := range pool {
		t.predict()
	}

	var activated, refound, newlyLost, newlyRemoved []*Track

	// first association, high score detections against all known tracks
	matches, unTracks, unDets := linearAssignment(iouDistance(pool, high),
		len(pool), len(high), bt.matchThresh)

	for _, m := range matches {
		track := pool[m.track]
		det := high[m.det]

		if track.State() == StateTracked {
			if err := track.update(det, bt.frameID); err != nil {
				return nil, fmt.Errorf("error updating track %d: %w", track.id, err)
			}
			activated = append(activated, track)
		} else {
			if err := track.reactivate(det, bt.frameID); err != nil {
				return nil, fmt.Errorf("error reactivating track %d: %w", track.id, err)
			}
			refound = append(refound, track)
		}
	}

	var remainTracked, remainHigh []*Track

	for _, i := range unTracks {
		if pool[i].State() == StateTracked {
			remainTracked = append(remainTracked, pool[i])
		}
	}

	for _, i := range unDets {
		remainHigh = append(remainHigh, high[i])
	}

	// second association, low score detections against tracks still unmatched
	matches, unTracks, _ = linearAssignment(iouDistance(remainTracked, low),
		len(remainTracked), len(low), lowMatchThresh)

	for _, m := range matches {
		track := remainTracked[m.track]

		if err := track.update(low[m.det], bt.frameID); err != nil {
			return nil, fmt.Errorf("error updating track %d: %w", track.id, err)
		}
		activated = append(activated, track)
	}

	for _, i := range unTracks {
		track := remainTracked[i]

		if track.State() != StateLost {
			track.status = StateLost
			newlyLost = append(newlyLost, track)
		}
	}

	// unconfirmed tracks only get one more chance to match
	matches, unTracks, unDets = linearAssignment(iouDistance(unconfirmed, remainHigh),
		len(unconfirmed), len(remainHigh), unconfirmedMatchThresh)

	for _, m := range matches {
		track := unconfirmed[m.track]

		if err := track.update(remainHigh[m.det], bt.frameID); err != nil {
			return nil, fmt.Errorf("error updating track %d: %w", track.id, err)
		}
		activated = append(activated, track)
	}

	for _, i := range unTracks {
		unconfirmed[i].status = StateRemoved
		newlyRemoved = append(newlyRemoved, unconfirmed[i])
	}

	// start new tracks from confident leftovers
	for _, i := range unDets {
		track := remainHigh[i]

		if track.score < bt.highThresh {
			continue
		}

		bt.nextID++
		track.activate(bt.frameID, bt.nextID)
		activated = append(activated, track)
	}

	// expire tracks lost for too long
	for _, t := range bt.lost {
		if bt.frameID-t.frameID > bt.maxTimeLost {
			t.status = StateRemoved
			newlyRemoved = append(newlyRemoved, t)
		}
	}

	bt.tracked = joinTracks(activated, refound)
	bt.lost = subTracks(bt.lost, bt.tracked)
	bt.lost = joinTracks(bt.lost, newlyLost)
	bt.lost = subTracks(bt.lost, newlyRemoved)
	bt.removed = append(bt.removed, newlyRemoved...)
	bt.tracked, bt.lost = removeDuplicates(bt.tracked, bt.lost)

	// removed tracks are never revisited so only a short history is kept
	if len(bt.removed) > 1000 {
		bt.removed = bt.removed[len(bt.removed)-1000:]
	}

	var out []*Track

	for _, t := range bt.tracked {
		if t.IsActivated() {
			out = append(out, t)
		}
	}

	return out, nil
}

// joinTracks appends the tracks of b not already in a
func joinTracks(a, b []*Track) []*Track {

	seen := make(map[int]bool, len(a)+len(b))
	res := make([]*Track, 0, len(a)+len(b))

	for _, t := range a {
		seen[t.id] = true
		res = append(res, t)
	}

	for _, t := range b {
		if !seen[t.id] {
			seen[t.id] = true
			res = append(res, t)
		}
	}

	return res
}

// subTracks returns the tracks of a that are not in b, preserving order
func subTracks(a, b []*Track) []*Track {

	drop := make(map[int]bool, len(b))

	for _, t := range b {
		drop[t.id] = true
	}

	var res []*Track

	for _, t := range a {
		if !drop[t.id] {
			res = append(res, t)
		}
	}

	return res
}

// removeDuplicates drops the younger of any tracked and lost pair that
// overlap almost entirely
func removeDuplicates(a, b []*Track) ([]*Track, []*Track) {

	dist := iouDistance(a, b)
	dropA := make([]bool, len(a))
	dropB := make([]bool, len(b))

	for i := range dist {
		for j := range dist[i] {
			if dist[i][j] >= duplicateThresh {
				continue
			}

			if a[i].age() > b[j].age() {
				dropB[j] = true
			} else {
				dropA[i] = true
			}
		}
	}

	var resA, resB []*Track

	for i, t := range a {
		if !dropA[i] {
			resA = append(resA, t)
		}
	}

	for j, t := range b {
		if !dropB[j] {
			resB = append(resB, t)
		}
	}

	return resA, resB
}

// iouDistance returns the 1-IoU cost matrix between two track lists
func iouDistance(a, b []*Track) [][]float64 {

	if len(a) == 0 || len(b) == 0 {
		return nil
	}

	cost := make([][]float64, len(a))

	for i := range a {
		cost[i] = make([]float64, len(b))

		for j := range b {
			cost[i][j] = 1 - a[i].box.IoU(b[j].box)
		}
	}

	return cost
}
