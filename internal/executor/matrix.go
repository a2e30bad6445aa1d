package executor

import (
	"fmt"

	"gonum.org/v1/gonum/mat"

	"github.com/ChuLiYu/autonomous-cluster/internal/simclock"
)

// multiplyRandomMatrices builds two size x size matrices of random floats
// and multiplies them with gonum. It panics on sizes too large to
// allocate, which Execute's recover turns into the bounded fallback.
func multiplyRandomMatrices(size int, rnd simclock.Rand) (any, error) {
	if size <= 0 {
		return nil, &ExecutionError{Message: "matrix_size must be positive"}
	}

	a := mat.NewDense(size, size, randomSlice(size*size, rnd))
	b := mat.NewDense(size, size, randomSlice(size*size, rnd))

	var c mat.Dense
	c.Mul(a, b)

	trace := 0.0
	for i := 0; i < size; i++ {
		trace += c.At(i, i)
	}

	return fmt.Sprintf("Matrix simulation completed: trace=%.2f (size: %dx%d)", trace, size, size), nil
}

func randomSlice(n int, rnd simclock.Rand) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = rnd.Float64()
	}
	return out
}
