// Copyright 2026 ember project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package stat

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollect(t *testing.T) {
	v := New("collect metric", "metric visible on the console", Console)
	v.Add(3)
	for _, ui := range Collect(Console) {
		if ui.Name == "collect metric" {
			assert.Equal(t, 3, ui.V)
			return
		}
	}
	t.Fatalf("metric was not collected")
}

func TestLenOf(t *testing.T) {
	var mu sync.RWMutex
	slice := []int{1, 2, 3}
	v := New("len metric", "tracks the slice length", LenOf(&slice, &mu))
	assert.Equal(t, 3, v.Val())
	mu.Lock()
	slice = append(slice, 4)
	mu.Unlock()
	assert.Equal(t, 4, v.Val())
}

func TestDuplicatePrometheusMetric(t *testing.T) {
	// A second engine instance in the same process re-registers its gauges;
	// that must not take the process down.
	require.NotPanics(t, func() {
		New("dup metric a", "duplicate gauge", Prometheus("ember_test_dup"))
		New("dup metric b", "duplicate gauge", Prometheus("ember_test_dup"))
	})
}
