package vm

import (
	"math"

	"github.com/wippyai/hostbridge/abi"
)

// matrix is a dense column-major view copied out of the heap.
type matrix struct {
	rows, cols int
	data       []float64
}

func (m *matrix) at(r, c int) float64     { return m.data[c*m.rows+r] }
func (m *matrix) set(r, c int, x float64) { m.data[c*m.rows+r] = x }

func (v *VM) matrixOf(a *array) (*matrix, bool) {
	switch a.rank {
	case 1:
		return &matrix{rows: a.dims[0], cols: 1, data: v.floatsOf(a)}, true
	case 2:
		return &matrix{rows: a.dims[0], cols: a.dims[1], data: v.floatsOf(a)}, true
	}
	return nil, false
}

// matmul computes A*B for a matrix A and a vector or matrix B.
func (v *VM) matmul(a, b *array) (abi.Ptr, error) {
	ma, aok := v.matrixOf(a)
	mb, bok := v.matrixOf(b)
	if !aok || !bok || a.rank != 2 {
		return abi.Null, v.methodError("*", []abi.Ptr{a.ptr, b.ptr})
	}
	if ma.cols != mb.rows {
		return abi.Null, v.throw("DimensionMismatch",
			"matrix A has dimensions (%d,%d), matrix B has dimensions (%d,%d)", ma.rows, ma.cols, mb.rows, mb.cols)
	}
	out := make([]float64, ma.rows*mb.cols)
	for j := 0; j < mb.cols; j++ {
		for k := 0; k < ma.cols; k++ {
			bkj := mb.at(k, j)
			for i := 0; i < ma.rows; i++ {
				out[j*ma.rows+i] += ma.at(i, k) * bkj
			}
		}
	}
	if b.rank == 1 {
		return v.numericResult(a, b, out, ma.rows)
	}
	return v.numericResult(a, b, out, ma.rows, mb.cols)
}

// numericResult stores a float64 result, narrowing to Int64 when both
// operands were integer arrays.
func (v *VM) numericResult(a, b *array, vals []float64, dims ...int) (abi.Ptr, error) {
	if a.elem().kind != kindInt64 || b.elem().kind != kindInt64 {
		return v.newFloatArray(vals, dims...)
	}
	typ, err := v.arrayType(v.types.int64, len(dims))
	if err != nil {
		return abi.Null, err
	}
	p, err := v.newArray(typ, dims)
	if err != nil {
		return abi.Null, err
	}
	out := v.arrayOf(p)
	for i, x := range vals {
		v.putNumber(out, i, intNum(int64(x)))
	}
	return p, nil
}

// solve computes A\B by Gaussian elimination with partial pivoting. A must
// be square; B is a vector or a matrix with the same number of rows.
func (v *VM) solve(a, b *array) (abi.Ptr, error) {
	ma, aok := v.matrixOf(a)
	mb, bok := v.matrixOf(b)
	if !aok || !bok || a.rank != 2 {
		return abi.Null, v.methodError("\\", []abi.Ptr{a.ptr, b.ptr})
	}
	n := ma.rows
	if ma.cols != n {
		return abi.Null, v.throw("DimensionMismatch", "matrix is not square: dimensions are (%d, %d)", ma.rows, ma.cols)
	}
	if mb.rows != n {
		return abi.Null, v.throw("DimensionMismatch",
			"arguments must have the same number of rows: A has %d, B has %d", n, mb.rows)
	}

	for k := 0; k < n; k++ {
		pivot := k
		for i := k + 1; i < n; i++ {
			if math.Abs(ma.at(i, k)) > math.Abs(ma.at(pivot, k)) {
				pivot = i
			}
		}
		if ma.at(pivot, k) == 0 {
			return abi.Null, v.throw("SingularException", "%d", k+1)
		}
		if pivot != k {
			for c := 0; c < n; c++ {
				x := ma.at(k, c)
				ma.set(k, c, ma.at(pivot, c))
				ma.set(pivot, c, x)
			}
			for c := 0; c < mb.cols; c++ {
				x := mb.at(k, c)
				mb.set(k, c, mb.at(pivot, c))
				mb.set(pivot, c, x)
			}
		}
		for i := k + 1; i < n; i++ {
			f := ma.at(i, k) / ma.at(k, k)
			if f == 0 {
				continue
			}
			for c := k; c < n; c++ {
				ma.set(i, c, ma.at(i, c)-f*ma.at(k, c))
			}
			for c := 0; c < mb.cols; c++ {
				mb.set(i, c, mb.at(i, c)-f*mb.at(k, c))
			}
		}
	}

	for c := 0; c < mb.cols; c++ {
		for i := n - 1; i >= 0; i-- {
			s := mb.at(i, c)
			for j := i + 1; j < n; j++ {
				s -= ma.at(i, j) * mb.at(j, c)
			}
			mb.set(i, c, s/ma.at(i, i))
		}
	}

	if b.rank == 1 {
		return v.newFloatArray(mb.data, n)
	}
	return v.newFloatArray(mb.data, n, mb.cols)
}
