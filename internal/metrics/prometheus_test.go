package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"govdash/pkg/logger"
)

func TestRecordTransition(t *testing.T) {
	applied := testutil.ToFloat64(ProxyTransitions.WithLabelValues("link", "initiate"))
	rejected := testutil.ToFloat64(ProxyInvalidTransitions.WithLabelValues("link", "summary"))

	RecordTransition("link", "initiate", nil)
	RecordTransition("link", "summary", errors.New("invalid"))

	assert.Equal(t, applied+1, testutil.ToFloat64(ProxyTransitions.WithLabelValues("link", "initiate")))
	assert.Equal(t, rejected+1, testutil.ToFloat64(ProxyInvalidTransitions.WithLabelValues("link", "summary")))
}

func TestRecordTopicFetch(t *testing.T) {
	before := testutil.ToFloat64(TopicFetches.WithLabelValues("kovan", "prod", "failure"))

	RecordTopicFetch("kovan", "prod", 10*time.Millisecond, errors.New("unreachable"))

	assert.Equal(t, before+1, testutil.ToFloat64(TopicFetches.WithLabelValues("kovan", "prod", "failure")))
}

func TestInit_Idempotent(t *testing.T) {
	assert.NotPanics(t, func() {
		Init()
		Init()
	})
}

func TestCustomCollector_NoStores(t *testing.T) {
	c := NewCustomCollector(logger.Nop(), nil, nil, "proxy_setup:")
	assert.Equal(t, 0, testutil.CollectAndCount(c))
}
