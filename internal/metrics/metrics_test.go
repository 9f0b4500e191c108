package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollectorRecords(t *testing.T) {
	c, err := New()
	require.NoError(t, err)

	c.ObserveRequest("marketplace", OutcomeOK, 200*time.Millisecond)
	c.ObserveRequest("marketplace", OutcomeOK, time.Second)
	c.ObserveRequest("companion", OutcomeTimeout, time.Second)
	c.IncAlerts("decorations")
	c.IncPasses("decorations")
	c.TaskStarted()
	c.TaskStarted()
	c.TaskDone()
	c.ObserveCacheLookup("miss")
	c.AddCatalogUpserts(3)
	c.AddCatalogUpserts(-1)

	assert.Equal(t, 2.0, testutil.ToFloat64(c.requestsTotal.WithLabelValues("marketplace", OutcomeOK)))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.requestsTotal.WithLabelValues("companion", OutcomeTimeout)))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.alertsTotal.WithLabelValues("decorations")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.passesTotal.WithLabelValues("decorations")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.tasksInFlight))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.cacheLookups.WithLabelValues("miss")))
	assert.Equal(t, 3.0, testutil.ToFloat64(c.catalogUpserts))
}

func TestNilCollectorIsNoop(t *testing.T) {
	var c *Collector

	assert.NotPanics(t, func() {
		c.ObserveRequest("marketplace", OutcomeOK, time.Second)
		c.IncAlerts("patterns")
		c.IncPasses("patterns")
		c.TaskStarted()
		c.TaskDone()
		c.ObserveCacheLookup("hit")
		c.AddCatalogUpserts(1)
	})
	assert.Nil(t, c.Registry())
}
