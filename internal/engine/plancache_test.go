package engine

import (
	"testing"

	"github.com/relstack-labs/relq/pkg/plan"
	"github.com/stretchr/testify/assert"
)

func TestPlanCacheEviction(t *testing.T) {
	c := newPlanCache(2)
	p1, p2, p3 := &plan.Plan{}, &plan.Plan{}, &plan.Plan{}

	c.put("q1", p1)
	c.put("q2", p2)

	// Touch q1 so q2 becomes the eviction candidate.
	_, ok := c.get("q1")
	assert.True(t, ok)

	c.put("q3", p3)
	assert.Equal(t, 2, c.len())

	_, ok = c.get("q2")
	assert.False(t, ok)

	got, ok := c.get("q1")
	assert.True(t, ok)
	assert.Same(t, p1, got)
}

func TestPlanCacheOverwrite(t *testing.T) {
	c := newPlanCache(2)
	p1, p2 := &plan.Plan{}, &plan.Plan{}

	c.put("q", p1)
	c.put("q", p2)
	assert.Equal(t, 1, c.len())

	got, _ := c.get("q")
	assert.Same(t, p2, got)
}
