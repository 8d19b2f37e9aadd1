// Copyright 2026 ember project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package hash

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHash(t *testing.T) {
	sig := Hash([]byte("some data"))
	assert.Equal(t, sig, Hash([]byte("some"), []byte(" data")))
	assert.NotEqual(t, sig, Hash([]byte("other data")))
	assert.Len(t, sig.String(), 40)
	assert.Equal(t, sig.String(), String([]byte("some data")))
}

func TestFromString(t *testing.T) {
	sig := Hash([]byte("round trip"))
	back, err := FromString(sig.String())
	require.NoError(t, err)
	assert.Equal(t, sig, back)
	_, err = FromString("not hex")
	assert.Error(t, err)
}

func TestTruncate64(t *testing.T) {
	a := Hash([]byte("a")).Truncate64()
	b := Hash([]byte("b")).Truncate64()
	assert.NotEqual(t, a, b)
	assert.Equal(t, a, Hash([]byte("a")).Truncate64())
}
