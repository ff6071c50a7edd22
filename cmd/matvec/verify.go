// Copyright 2019 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package main

import (
	"fmt"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/matvec"
	"gonum.org/v1/gonum/mat"
)

// check verifies w against the sequential product of m and v and
// against a floating point product computed by gonum. Generated
// elements are small enough for the floating point product to be
// exact.
func check(m *matvec.Matrix, v, w matvec.Vector) error {
	want, err := matvec.Multiply(m, v)
	if err != nil {
		return err
	}
	if err := compare("sequential", w, want); err != nil {
		return err
	}
	if m.Rows() == 0 || m.Cols() == 0 {
		return nil
	}
	return compare("gonum", w, dense(m, v))
}

// dense computes the product of m and v with gonum.
func dense(m *matvec.Matrix, v matvec.Vector) matvec.Vector {
	data := make([]float64, 0, m.Rows()*m.Cols())
	for i := 0; i < m.Rows(); i++ {
		for _, x := range m.Row(i) {
			data = append(data, float64(x))
		}
	}
	x := make([]float64, len(v))
	for i := range v {
		x[i] = float64(v[i])
	}
	var y mat.VecDense
	y.MulVec(mat.NewDense(m.Rows(), m.Cols(), data), mat.NewVecDense(len(x), x))
	out := make(matvec.Vector, y.Len())
	for i := range out {
		out[i] = int64(y.AtVec(i))
	}
	return out
}

func compare(what string, got, want matvec.Vector) error {
	if len(got) != len(want) {
		return errors.E(errors.Integrity, fmt.Sprintf("%s: result has %d elements, want %d", what, len(got), len(want)))
	}
	for i := range got {
		if got[i] != want[i] {
			return errors.E(errors.Integrity, fmt.Sprintf("%s: element %d is %d, want %d", what, i, got[i], want[i]))
		}
	}
	return nil
}
