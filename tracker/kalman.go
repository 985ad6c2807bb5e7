package tracker

import (
	"errors"
	"fmt"
	"gonum.org/v1/gonum/mat"
)

const (
	// dim is the number of state dimensions, position plus velocity
	dim = 8
	// mdim is the number of measured dimensions (x, y, aspect, height)
	mdim = 4
)

// ErrFactorize is returned when the innovation covariance is not positive
// definite
var ErrFactorize = errors.New("failed to factorize projected covariance")

// State is the Gaussian estimate of a track's position and velocity in
// x, y, aspect, height space
type State struct {
	Mean *mat.VecDense
	Cov  *mat.SymDense
}

// Kalman is a constant velocity Kalman filter over bounding box geometry.
// Process and measurement noise scale with the box height.
type Kalman struct {
	// posWeight scales the position noise relative to box height
	posWeight float64
	// velWeight scales the velocity noise relative to box height
	velWeight float64
	// motion is the 8x8 state transition matrix
	motion *mat.Dense
	// observe is the 4x8 measurement matrix
	observe *mat.Dense
}

// NewKalman returns a filter using the given position and velocity noise
// weights, typically 1/20 and 1/160
func NewKalman(posWeight, velWeight float64) *Kalman {

	motion := mat.NewDense(dim, dim, nil)

	for i := 0; i < dim; i++ {
		motion.Set(i, i, 1)
	}

	// position advances by velocity each step
	for i := 0; i < mdim; i++ {
		motion.Set(i, mdim+i, 1)
	}

	observe := mat.NewDense(mdim, dim, nil)

	for i := 0; i < mdim; i++ {
		observe.Set(i, i, 1)
	}

	return &Kalman{
		posWeight: posWeight,
		velWeight: velWeight,
		motion:    motion,
		observe:   observe,
	}
}

// diag builds a diagonal covariance from standard deviations
func diag(std []float64) *mat.SymDense {

	cov := mat.NewSymDense(len(std), nil)

	for i, s := range std {
		cov.SetSym(i, i, s*s)
	}

	return cov
}

// Initiate creates a new state from an unassociated measurement with zero
// velocity
func (k *Kalman) Initiate(measure [4]float64) State {

	mean := mat.NewVecDense(dim, nil)

	for i := 0; i < mdim; i++ {
		mean.SetVec(i, measure[i])
	}

	h := measure[3]
	pos := 2 * k.posWeight * h
	vel := 10 * k.velWeight * h

	return State{
		Mean: mean,
		Cov:  diag([]float64{pos, pos, 1e-2, pos, vel, vel, 1e-5, vel}),
	}
}

// Predict advances the state one step
func (k *Kalman) Predict(s *State) {

	h := s.Mean.AtVec(3)
	pos := k.posWeight * h
	vel := k.velWeight * h
	noise := diag([]float64{pos, pos, 1e-2, pos, vel, vel, 1e-5, vel})

	var mean mat.VecDense
	mean.MulVec(k.motion, s.Mean)

	var tmp, cov mat.Dense
	tmp.Mul(k.motion, s.Cov)
	cov.Mul(&tmp, k.motion.T())
	cov.Add(&cov, noise)

	s.Mean = &mean
	s.Cov = symmetric(&cov)
}

// project maps the state into measurement space, adding measurement noise
func (k *Kalman) project(s State) (*mat.VecDense, *mat.SymDense) {

	h := s.Mean.AtVec(3)
	pos := k.posWeight * h
	noise := diag([]float64{pos, pos, 1e-1, pos})

	var mean mat.VecDense
	mean.MulVec(k.observe, s.Mean)

	var tmp, cov mat.Dense
	tmp.Mul(k.observe, s.Cov)
	cov.Mul(&tmp, k.observe.T())
	cov.Add(&cov, noise)

	return &mean, symmetric(&cov)
}

// Update corrects the state with an associated measurement
func (k *Kalman) Update(s *State, measure [4]float64) error {

	projMean, projCov := k.project(*s)

	var chol mat.Cholesky

	if ok := chol.Factorize(projCov); !ok {
		return ErrFactorize
	}

	// gain K satisfies K S = P H^T, solve S K^T = (P H^T)^T
	var pht mat.Dense
	pht.Mul(s.Cov, k.observe.T())

	var gainT mat.Dense

	if err := chol.SolveTo(&gainT, pht.T()); err != nil {
		return fmt.Errorf("failed to compute kalman gain: %w", err)
	}

	innovation := mat.NewVecDense(mdim, nil)

	for i := 0; i < mdim; i++ {
		innovation.SetVec(i, measure[i]-projMean.AtVec(i))
	}

	var correction mat.VecDense
	correction.MulVec(gainT.T(), innovation)

	var mean mat.VecDense
	mean.AddVec(s.Mean, &correction)

	// P - K S K^T
	var ks, ksk, cov mat.Dense
	ks.Mul(gainT.T(), projCov)
	ksk.Mul(&ks, &gainT)
	cov.Sub(s.Cov, &ksk)

	s.Mean = &mean
	s.Cov = symmetric(&cov)

	return nil
}

// symmetric copies a square matrix into a SymDense averaging any asymmetry
// introduced by floating point error
func symmetric(m *mat.Dense) *mat.SymDense {

	n, _ := m.Dims()
	out := mat.NewSymDense(n, nil)

	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			out.SetSym(i, j, (m.At(i, j)+m.At(j, i))/2)
		}
	}

	return out
}
