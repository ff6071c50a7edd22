// Copyright 2019 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package exec

import (
	"context"
	"reflect"
	"strings"
	"testing"

	"github.com/grailbio/base/config"
	"github.com/grailbio/testutil/assert"
	"github.com/grailbio/testutil/expect"
)

func TestConfig(t *testing.T) {
	profile := config.New()
	assert.NoError(t, profile.Parse(strings.NewReader(`
param matvec (
	procs = 3
	max-procs = 1
)
`)))
	var sess *Session
	assert.NoError(t, profile.Instance("matvec", &sess))
	defer sess.Shutdown()
	expect.EQ(t, sess.Procs(), 3)
	expect.EQ(t, sess.executorName(), "local")
	got, err := sess.Multiply(context.Background(), exampleMatrix(t), exampleVector)
	assert.NoError(t, err)
	if !reflect.DeepEqual(got, exampleProduct) {
		t.Errorf("got %v, want %v", got, exampleProduct)
	}
}
