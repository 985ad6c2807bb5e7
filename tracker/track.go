package tracker

// TrackState is the lifecycle state of a track
type TrackState int

const (
	// StateNew is a track created from a detection but not yet activated
	StateNew TrackState = iota
	// StateTracked is a track associated with a detection in the latest frame
	StateTracked
	// StateLost is a track that missed one or more recent frames
	StateLost
	// StateRemoved is a track that has been lost for too long
	StateRemoved
)

// Object is a detection handed to the tracker
type Object struct {
	// ID identifies the detection so callers can map tracks back to their
	// input, typically the index of the detection within the frame
	ID int64
	// Box is the detection bounding box
	Box Box
	// Label is the detector class id
	Label int
	// Score is the detection confidence
	Score float64
}

// Track is a single object followed across frames
type Track struct {
	kf    *Kalman
	state State
	box   Box

	status    TrackState
	activated bool

	id          int
	detectionID int64
	label       int
	score       float64

	frameID      int
	startFrameID int
	trackletLen  int
}

// newTrack creates an inactive track from a detection
func newTrack(kf *Kalman, obj Object) *Track {
	return &Track{
		kf:          kf,
		box:         obj.Box,
		status:      StateNew,
		detectionID: obj.ID,
		label:       obj.Label,
		score:       obj.Score,
	}
}

// ID returns the stable track id, starting at 1
func (t *Track) ID() int {
	return t.id
}

// DetectionID returns the ID of the Object that last updated the track
func (t *Track) DetectionID() int64 {
	return t.detectionID
}

// Box returns the filtered bounding box of the track
func (t *Track) Box() Box {
	return t.box
}

// Label returns the class id of the detection that created the track
func (t *Track) Label() int {
	return t.label
}

// Score returns the confidence of the latest associated detection
func (t *Track) Score() float64 {
	return t.score
}

// State returns the lifecycle state of the track
func (t *Track) State() TrackState {
	return t.status
}

// IsActivated reports whether the track has been confirmed
func (t *Track) IsActivated() bool {
	return t.activated
}

// age is the number of frames the track has existed
func (t *Track) age() int {
	return t.frameID - t.startFrameID
}

// activate starts a new track.  Only tracks born on the first frame are
// confirmed immediately, others need a second association.
func (t *Track) activate(frameID, id int) {

	t.state = t.kf.Initiate(t.box.XYAH())
	t.syncBox()

	t.status = StateTracked
	t.activated = frameID == 1
	t.id = id
	t.frameID = frameID
	t.startFrameID = frameID
	t.trackletLen = 0
}

// predict advances the Kalman state.  Height velocity is zeroed for tracks
// that are not currently tracked.
func (t *Track) predict() {

	if t.status != StateTracked {
		t.state.Mean.SetVec(7, 0)
	}

	t.kf.Predict(&t.state)
	t.syncBox()
}

// update associates a detection with the track
func (t *Track) update(det *Track, frameID int) error {

	if err := t.kf.Update(&t.state, det.box.XYAH()); err != nil {
		return err
	}

	t.syncBox()

	t.status = StateTracked
	t.activated = true
	t.score = det.score
	t.detectionID = det.detectionID
	t.frameID = frameID
	t.trackletLen++

	return nil
}

// reactivate recovers a lost track with a new detection
func (t *Track) reactivate(det *Track, frameID int) error {

	if err := t.update(det, frameID); err != nil {
		return err
	}

	t.trackletLen = 0

	return nil
}

// syncBox refreshes the bounding box from the Kalman mean
func (t *Track) syncBox() {

	var xyah [4]float64

	for i := range xyah {
		xyah[i] = t.state.Mean.AtVec(i)
	}

	t.box = boxFromXYAH(xyah)
}
