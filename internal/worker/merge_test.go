package worker

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/AmiBuch/flowmr/internal/mapreduce"
)

func TestMergeByKeyGroupsAcrossRuns(t *testing.T) {
	runA := &run{kvs: []mapreduce.KV{{Key: "bar", Value: "1"}, {Key: "foo", Value: "1"}}}
	runB := &run{kvs: []mapreduce.KV{{Key: "bar", Value: "1"}, {Key: "zap", Value: "1"}}}

	groups := map[string][]string{}
	var order []string
	mergeByKey([]*run{runA, runB}, func(key string, values []string) {
		groups[key] = values
		order = append(order, key)
	})

	assert.Equal(t, []string{"bar", "bar"}, groups["bar"])
	assert.Equal(t, []string{"foo"}, groups["foo"])
	assert.Equal(t, []string{"zap"}, groups["zap"])
	assert.Equal(t, []string{"bar", "foo", "zap"}, order, "groups must be emitted in key order")
}

func TestMergeByKeyHandlesEmptyRuns(t *testing.T) {
	var seen []string
	mergeByKey([]*run{{kvs: nil}, {kvs: []mapreduce.KV{{Key: "x", Value: "1"}}}}, func(key string, values []string) {
		seen = append(seen, key)
	})
	assert.Equal(t, []string{"x"}, seen)
}

func TestPartitionOfIsStableAndInRange(t *testing.T) {
	for _, key := range []string{"a", "bb", "ccc", ""} {
		p := partitionOf(key, 4)
		assert.GreaterOrEqual(t, p, 0)
		assert.Less(t, p, 4)
		assert.Equal(t, p, partitionOf(key, 4), "partitioning must be deterministic")
	}
}
