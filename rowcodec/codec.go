// Copyright 2019 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package rowcodec converts between matrix rows and the flat integer
// buffers that are transmitted to workers. A row buffer carries no
// row indices: rows are recovered purely by position, so the order in
// which rows are encoded is the order in which they are decoded.
package rowcodec

import (
	"encoding/binary"
	"fmt"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/matvec"
	"github.com/spaolacci/murmur3"
)

// EncodeRows returns the cells of the provided rows of m, concatenated
// in row-major order. Rows are encoded in the order given.
func EncodeRows(m *matvec.Matrix, rows []int) ([]int64, error) {
	buf := make([]int64, 0, len(rows)*m.Cols())
	for _, row := range rows {
		if row < 0 || row >= m.Rows() {
			return nil, errors.E(errors.Invalid, fmt.Sprintf("rowcodec.EncodeRows: row %d out of range [0, %d)", row, m.Rows()))
		}
		buf = append(buf, m.Row(row)...)
	}
	return buf, nil
}

// DecodeRows splits buf into consecutive rows of width cells each. The
// returned rows alias buf. DecodeRows returns an error matching
// matvec.ErrMalformedRowBuffer if buf's length is not a multiple of
// width.
func DecodeRows(buf []int64, width int) ([][]int64, error) {
	if len(buf) == 0 {
		return nil, nil
	}
	if width <= 0 {
		return nil, matvec.MalformedRowBuffer("rowcodec.DecodeRows: %d cells with row width %d", len(buf), width)
	}
	if len(buf)%width != 0 {
		return nil, matvec.MalformedRowBuffer("rowcodec.DecodeRows: %d cells is not a multiple of row width %d", len(buf), width)
	}
	rows := make([][]int64, len(buf)/width)
	for i := range rows {
		rows[i] = buf[i*width : (i+1)*width : (i+1)*width]
	}
	return rows, nil
}

// EncodeVector returns the transmissible form of v: an independent
// copy of its elements.
func EncodeVector(v matvec.Vector) []int64 {
	return []int64(v.Copy())
}

// DecodeVector returns the vector carried by buf. The returned vector
// aliases buf.
func DecodeVector(buf []int64) matvec.Vector {
	return matvec.Vector(buf)
}

// Checksum returns a fingerprint of the contents of buf.
func Checksum(buf []int64) uint32 {
	h := murmur3.New32()
	var b [8]byte
	for _, x := range buf {
		binary.LittleEndian.PutUint64(b[:], uint64(x))
		h.Write(b[:])
	}
	return h.Sum32()
}
