package mapreduce

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWordCountMapperSplitsOnWhitespace(t *testing.T) {
	kvs := WordCountMapper("the quick brown fox jumps over the lazy dog")
	assert.Len(t, kvs, 9)
	for _, kv := range kvs {
		assert.Equal(t, "1", kv.Value)
	}
}

func TestWordCountReducerSumsOccurrences(t *testing.T) {
	it := NewSliceIterator([]string{"1", "1", "1"})
	out := WordCountReducer("the", it)
	assert.Equal(t, []KV{{Key: "the", Value: "3"}}, out)
}

func TestWordCountScenario(t *testing.T) {
	// A small multi-line word count, run through the mapper and reducer
	// functions directly (no scheduler, no tasks).
	lines := []string{"foo bar", "foo baz", "bar"}
	counts := map[string]int{}
	for _, line := range lines {
		for _, kv := range WordCountMapper(line) {
			counts[kv.Key]++
		}
	}

	for key, n := range counts {
		values := make([]string, n)
		for i := range values {
			values[i] = "1"
		}
		out := WordCountReducer(key, NewSliceIterator(values))
		assert.Len(t, out, 1)
	}

	assert.Equal(t, 2, counts["foo"])
	assert.Equal(t, 2, counts["bar"])
	assert.Equal(t, 1, counts["baz"])
}

func TestRegistryResolvesBuiltins(t *testing.T) {
	r := NewRegistry()
	assert.True(t, r.HasMapper("wordcount"))
	assert.True(t, r.HasReducer("wordcount"))
	assert.False(t, r.HasMapper("unknown"))

	_, err := r.Mapper("unknown")
	assert.Error(t, err)
}
