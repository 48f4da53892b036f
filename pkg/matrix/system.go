package matrix

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"

	"github.com/cespare/xxhash/v2"
)

// System is an assembled MNA system A x = b. A is kept dense so it can be
// fingerprinted and compared exactly; factorization goes through the sparse package.
type System struct {
	Size int
	a    []float64 // row-major, 0-based
	rhs  []float64 // 1-based
}

func NewSystem(size int) *System {
	return &System{
		Size: size,
		a:    make([]float64, size*size),
		rhs:  make([]float64, size+1),
	}
}

func (s *System) AddElement(i, j int, value float64) {
	if i <= 0 || j <= 0 || i > s.Size || j > s.Size {
		return
	}
	s.a[(i-1)*s.Size+(j-1)] += value
}

func (s *System) AddRHS(i int, value float64) {
	if i <= 0 || i > s.Size {
		return
	}
	s.rhs[i] += value
}

// LoadGmin adds gmin on the first rows diagonals (the node rows).
func (s *System) LoadGmin(gmin float64, rows int) {
	for i := 1; i <= rows && i <= s.Size; i++ {
		s.AddElement(i, i, gmin)
	}
}

func (s *System) At(i, j int) float64 {
	return s.a[(i-1)*s.Size+(j-1)]
}

// RHS returns the 1-based right hand side.
func (s *System) RHS() []float64 { return s.rhs }

func (s *System) Entries() []float64 { return s.a }

// Fingerprint hashes the size and the exact bit patterns of A.
func (s *System) Fingerprint() uint64 {
	buf := make([]byte, 0, 8*(len(s.a)+1))
	buf = binary.LittleEndian.AppendUint64(buf, uint64(s.Size))
	for _, v := range s.a {
		buf = binary.LittleEndian.AppendUint64(buf, math.Float64bits(v))
	}
	return xxhash.Sum64(buf)
}

// Residual returns max|A x - b| for a 1-based solution x.
func (s *System) Residual(x []float64) float64 {
	worst := 0.0
	for i := 1; i <= s.Size; i++ {
		sum := -s.rhs[i]
		for j := 1; j <= s.Size; j++ {
			sum += s.At(i, j) * x[j]
		}
		worst = math.Max(worst, math.Abs(sum))
	}
	return worst
}

func (s *System) PrintSystem(w io.Writer) {
	fmt.Fprintf(w, "\nCircuit Equations (%dx%d):\n", s.Size, s.Size)
	fmt.Fprintln(w, "Node equations 1..n, followed by branch equations")

	for i := 1; i <= s.Size; i++ {
		fmt.Fprintf(w, "Equation %d:", i)
		for j := 1; j <= s.Size; j++ {
			if v := s.At(i, j); v != 0 {
				fmt.Fprintf(w, "  %+g*x%d", v, j)
			}
		}
		fmt.Fprintf(w, " = %g\n", s.rhs[i])
	}
}
