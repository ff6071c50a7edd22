// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package stats

import "testing"

func TestStats(t *testing.T) {
	coll := NewMap()
	var (
		rows = coll.Int(Rows)
		_    = coll.Int(Cells)
	)
	if got, want := rows.Get(), int64(0); got != want {
		t.Errorf("got %v, want %v", got, want)
	}
	rows.Add(123)
	rows.Add(123)
	if got, want := rows.Get(), int64(123*2); got != want {
		t.Errorf("got %v, want %v", got, want)
	}
	all := make(Values)
	all.Merge(coll.Snapshot())
	all.Merge(coll.Snapshot())
	if got, want := len(all), 2; got != want {
		t.Errorf("got %v, want %v", got, want)
	}
	if got, want := all[Rows], int64(123*4); got != want {
		t.Errorf("got %v, want %v", got, want)
	}
	if got, want := all[Cells], int64(0); got != want {
		t.Errorf("got %v, want %v", got, want)
	}
	if got, want := all.String(), "cells:0 rows:492"; got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestNilMap(t *testing.T) {
	var m *Map
	m.Int(Rows).Add(1)
	if got, want := m.Int(Rows).Get(), int64(0); got != want {
		t.Errorf("got %v, want %v", got, want)
	}
	if got, want := len(m.Snapshot()), 0; got != want {
		t.Errorf("got %v, want %v", got, want)
	}
}
