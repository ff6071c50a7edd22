// Copyright 2019 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package matvec

import (
	"fmt"
	"strings"
)

// A Vector is a dense sequence of integers.
type Vector []int64

// Copy returns an independent copy of v.
func (v Vector) Copy() Vector {
	if v == nil {
		return nil
	}
	w := make(Vector, len(v))
	copy(w, v)
	return w
}

// String formats the vector's elements separated by tabs.
func (v Vector) String() string {
	var b strings.Builder
	for i, x := range v {
		if i > 0 {
			b.WriteByte('\t')
		}
		fmt.Fprint(&b, x)
	}
	return b.String()
}

// A Matrix is a dense, row-major matrix of integers. Matrices are
// read-only once constructed: the rows returned by Row alias the
// matrix's storage and must not be modified.
type Matrix struct {
	rows, cols int
	cells      []int64
}

// NewMatrix returns a zero-valued matrix with the provided dimensions.
func NewMatrix(rows, cols int) *Matrix {
	if rows < 0 || cols < 0 {
		panic(fmt.Sprintf("matvec.NewMatrix: invalid dimensions %dx%d", rows, cols))
	}
	return &Matrix{rows: rows, cols: cols, cells: make([]int64, rows*cols)}
}

// MatrixOf returns a matrix with a copy of the provided rows. All rows
// must have the same width.
func MatrixOf(rows [][]int64) (*Matrix, error) {
	if len(rows) == 0 {
		return NewMatrix(0, 0), nil
	}
	m := NewMatrix(len(rows), len(rows[0]))
	for i, row := range rows {
		if len(row) != m.cols {
			return nil, DimensionMismatch("row %d has width %d, want %d", i, len(row), m.cols)
		}
		copy(m.cells[i*m.cols:], row)
	}
	return m, nil
}

// Rows returns the number of rows in m.
func (m *Matrix) Rows() int { return m.rows }

// Cols returns the number of columns in m.
func (m *Matrix) Cols() int { return m.cols }

// Row returns the i'th row of m.
func (m *Matrix) Row(i int) []int64 {
	return m.cells[i*m.cols : (i+1)*m.cols : (i+1)*m.cols]
}

// At returns the value at row i, column j.
func (m *Matrix) At(i, j int) int64 {
	return m.cells[i*m.cols+j]
}

// Set sets the value at row i, column j. Set is intended for
// constructing matrices; it must not be called once the matrix is in
// use by a multiplication.
func (m *Matrix) Set(i, j int, v int64) {
	m.cells[i*m.cols+j] = v
}

// String formats the matrix one row per line, with tab-separated
// columns.
func (m *Matrix) String() string {
	var b strings.Builder
	for i := 0; i < m.rows; i++ {
		b.WriteString(Vector(m.Row(i)).String())
		b.WriteByte('\n')
	}
	return b.String()
}

// Dot returns the dot product of a and b, which must have the same
// length.
func Dot(a, b []int64) (int64, error) {
	if len(a) != len(b) {
		return 0, DimensionMismatch("vector lengths %d and %d differ", len(a), len(b))
	}
	var sum int64
	for i := range a {
		sum += a[i] * b[i]
	}
	return sum, nil
}

// Multiply computes m*v sequentially in the calling goroutine. It
// serves as the reference against which distributed results are
// checked.
func Multiply(m *Matrix, v Vector) (Vector, error) {
	if m.cols != len(v) {
		return nil, DimensionMismatch("matrix has %d columns, vector has length %d", m.cols, len(v))
	}
	out := make(Vector, m.rows)
	for i := range out {
		// Dimensions were checked above.
		out[i], _ = Dot(m.Row(i), v)
	}
	return out, nil
}
