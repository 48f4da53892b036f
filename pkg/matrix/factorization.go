package matrix

import (
	"errors"
	"fmt"
	"math"
	"slices"

	"github.com/edp1096/sparse"
	"gonum.org/v1/gonum/mat"

	"github.com/edp1096/toy-circuit/internal/consts"
)

var ErrSingular = errors.New("matrix is singular")

// Key identifies what a factorization was built for besides the matrix entries.
type Key struct {
	TopologyVersion uint64
	Methods         string
	Fingerprint     uint64
}

// Factorization is an LU factorization of one assembled A. The sparse factors are
// primary; a dense gonum LU is built lazily when the sparse path fails or its
// solution does not satisfy the residual check.
type Factorization struct {
	Key     Key
	size    int
	entries []float64

	sp    *sparse.Matrix
	spErr error

	lu       *mat.LU
	luErr    error
	fallback bool
}

// Factorize builds a factorization of sys. It fails with ErrSingular when neither
// the sparse nor the dense path can factor the matrix.
func Factorize(key Key, sys *System) (*Factorization, error) {
	f := &Factorization{
		Key:     key,
		size:    sys.Size,
		entries: slices.Clone(sys.Entries()),
	}
	if f.size == 0 {
		return f, nil
	}

	f.sp, f.spErr = factorSparse(f.size, f.entries)
	if f.spErr != nil {
		if err := f.ensureDense(); err != nil {
			return nil, err
		}
	}
	return f, nil
}

func factorSparse(size int, entries []float64) (m *sparse.Matrix, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("sparse factorization panicked: %v", r)
		}
	}()

	config := &sparse.Configuration{
		Real:           true,
		Complex:        false,
		Expandable:     true,
		Translate:      false,
		ModifiedNodal:  true,
		TiesMultiplier: 5,
		PrinterWidth:   140,
	}

	m, err = sparse.Create(int64(size), config)
	if err != nil {
		return nil, fmt.Errorf("creating sparse matrix: %w", err)
	}
	for i := 1; i <= size; i++ {
		for j := 1; j <= size; j++ {
			if v := entries[(i-1)*size+(j-1)]; v != 0 {
				m.GetElement(int64(i), int64(j)).Real = v
			}
		}
	}
	if err = m.Factor(); err != nil {
		m.Destroy()
		return nil, fmt.Errorf("sparse factorization failed: %w", err)
	}
	return m, nil
}

func (f *Factorization) ensureDense() error {
	if f.lu != nil || f.luErr != nil {
		return f.luErr
	}
	f.fallback = true

	a := mat.NewDense(f.size, f.size, slices.Clone(f.entries))
	var lu mat.LU
	lu.Factorize(a)
	if cond := lu.Cond(); math.IsInf(cond, 1) || math.IsNaN(cond) || cond > consts.SingularCondition {
		f.luErr = fmt.Errorf("%w (condition number %g)", ErrSingular, cond)
		return f.luErr
	}
	f.lu = &lu
	return nil
}

// Matches reports whether f was built for exactly this key and matrix.
func (f *Factorization) Matches(key Key, sys *System) bool {
	return f != nil && f.Key == key && f.size == sys.Size && slices.Equal(f.entries, sys.Entries())
}

// UsedFallback reports whether the dense path was needed.
func (f *Factorization) UsedFallback() bool { return f.fallback }

// Solve solves A x = rhs with a 1-based rhs and returns a 1-based solution.
func (f *Factorization) Solve(rhs []float64) ([]float64, error) {
	if f.size == 0 {
		return make([]float64, 1), nil
	}
	if len(rhs) != f.size+1 {
		return nil, fmt.Errorf("rhs length %d does not match matrix size %d", len(rhs), f.size)
	}

	if f.sp != nil {
		x, err := solveSparse(f.sp, rhs)
		if err == nil && f.acceptable(x, rhs) {
			return x, nil
		}
	}

	if err := f.ensureDense(); err != nil {
		return nil, err
	}
	b := mat.NewVecDense(f.size, slices.Clone(rhs[1:]))
	var x mat.VecDense
	if err := f.lu.SolveVecTo(&x, false, b); err != nil {
		return nil, fmt.Errorf("dense solve failed: %w", err)
	}
	solution := make([]float64, f.size+1)
	for i := 0; i < f.size; i++ {
		solution[i+1] = x.AtVec(i)
	}
	return solution, nil
}

func solveSparse(m *sparse.Matrix, rhs []float64) (x []float64, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("sparse solve panicked: %v", r)
		}
	}()
	return m.Solve(rhs)
}

func (f *Factorization) acceptable(x, rhs []float64) bool {
	normA, normX, normB, worst := 0.0, 0.0, 0.0, 0.0
	for i := 1; i <= f.size; i++ {
		row := f.entries[(i-1)*f.size : i*f.size]
		sum, rowNorm := -rhs[i], 0.0
		for j, v := range row {
			sum += v * x[j+1]
			rowNorm += math.Abs(v)
		}
		if math.IsNaN(sum) || math.IsInf(sum, 0) {
			return false
		}
		worst = math.Max(worst, math.Abs(sum))
		normA = math.Max(normA, rowNorm)
		normX = math.Max(normX, math.Abs(x[i]))
		normB = math.Max(normB, math.Abs(rhs[i]))
	}
	return worst <= consts.ResidualTolerance*(normA*normX+normB)
}

func (f *Factorization) Destroy() {
	if f.sp != nil {
		f.sp.Destroy()
		f.sp = nil
	}
}
