// Copyright 2019 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package rowcodec

import (
	"math/rand"
	"reflect"
	"testing"

	fuzz "github.com/google/gofuzz"
	"github.com/grailbio/matvec"
	"github.com/grailbio/testutil/assert"
	"github.com/grailbio/testutil/expect"
)

func TestRoundTrip(t *testing.T) {
	const N = 40
	m := matvec.GenerateMatrix(N, rand.New(rand.NewSource(0)))
	fz := fuzz.NewWithSeed(N)
	for i := 0; i < 100; i++ {
		var picks []uint8
		fz.NilChance(0).NumElements(1, 2*N).Fuzz(&picks)
		rows := make([]int, len(picks))
		for j, p := range picks {
			rows[j] = int(p) % N
		}
		buf, err := EncodeRows(m, rows)
		assert.NoError(t, err)
		if got, want := len(buf), len(rows)*N; got != want {
			t.Fatalf("got %v, want %v", got, want)
		}
		decoded, err := DecodeRows(buf, N)
		assert.NoError(t, err)
		if got, want := len(decoded), len(rows); got != want {
			t.Fatalf("got %v, want %v", got, want)
		}
		for j, row := range rows {
			if !reflect.DeepEqual(decoded[j], m.Row(row)) {
				t.Errorf("row %d (matrix row %d): got %v, want %v", j, row, decoded[j], m.Row(row))
			}
		}
	}
}

func TestEncodeRowsOrder(t *testing.T) {
	m, err := matvec.MatrixOf([][]int64{{1, 2}, {3, 4}, {5, 6}})
	assert.NoError(t, err)
	buf, err := EncodeRows(m, []int{2, 0})
	assert.NoError(t, err)
	expect.EQ(t, buf, []int64{5, 6, 1, 2})

	buf, err = EncodeRows(m, nil)
	assert.NoError(t, err)
	expect.EQ(t, len(buf), 0)

	_, err = EncodeRows(m, []int{3})
	if err == nil {
		t.Error("expected error for out of range row")
	}
}

func TestDecodeRowsMalformed(t *testing.T) {
	for _, c := range []struct {
		buf   []int64
		width int
	}{
		{[]int64{1, 2, 3}, 2},
		{[]int64{1, 2, 3}, 0},
		{[]int64{1}, -1},
	} {
		_, err := DecodeRows(c.buf, c.width)
		if !matvec.IsMalformedRowBuffer(err) {
			t.Errorf("DecodeRows(%v, %d): expected malformed row buffer, got %v", c.buf, c.width, err)
		}
	}
	rows, err := DecodeRows(nil, 0)
	assert.NoError(t, err)
	expect.EQ(t, len(rows), 0)
}

func TestVector(t *testing.T) {
	v := matvec.Vector{1, 2, 3}
	buf := EncodeVector(v)
	buf[0] = 100
	if got, want := v[0], int64(1); got != want {
		t.Errorf("encoded vector aliases its source: got %v, want %v", got, want)
	}
	expect.EQ(t, DecodeVector(buf), matvec.Vector{100, 2, 3})
}

func TestChecksum(t *testing.T) {
	a := []int64{1, 2, 3, 4}
	b := []int64{1, 2, 4, 3}
	if Checksum(a) == Checksum(b) {
		t.Error("checksum is insensitive to order")
	}
	expect.EQ(t, Checksum(a), Checksum([]int64{1, 2, 3, 4}))
}
