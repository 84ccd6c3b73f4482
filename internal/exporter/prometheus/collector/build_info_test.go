// SPDX-FileCopyrightText: 2025 The Kepler Authors
// SPDX-License-Identifier: Apache-2.0

package collector

import (
	"sync"
	"testing"

	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestBuildInfo(t *testing.T) {
	c := NewBuildInfoCollector()

	descs := make(chan *prom.Desc, 1)
	c.Describe(descs)
	assert.Len(t, descs, 1)

	assert.Equal(t, 1, testutil.CollectAndCount(c, "gpufreq_build_info"))

	ch := make(chan prom.Metric, 1)
	c.Collect(ch)
	desc := (<-ch).Desc().String()
	for _, label := range []string{"arch", "branch", "revision", "version", "goversion"} {
		assert.Contains(t, desc, label)
	}
}

func TestBuildInfoParallelCollect(t *testing.T) {
	c := NewBuildInfoCollector()
	const n = 10
	ch := make(chan prom.Metric, n)

	var wg sync.WaitGroup
	for range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.Collect(ch)
		}()
	}
	wg.Wait()
	assert.Len(t, ch, n)
}
