package mapreduce

import (
	"strconv"
	"strings"
)

// WordCountMapper emits (word, "1") for each whitespace-delimited token on
// the line, matching spec.md 8 scenario 1.
func WordCountMapper(line string) []KV {
	fields := strings.Fields(line)
	out := make([]KV, 0, len(fields))
	for _, f := range fields {
		out = append(out, KV{Key: f, Value: "1"})
	}
	return out
}

// WordCountReducer sums the "1" values for a key into a single count.
func WordCountReducer(key string, values ValueIterator) []KV {
	count := 0
	for {
		_, ok := values.Next()
		if !ok {
			break
		}
		count++
	}
	return []KV{{Key: key, Value: strconv.Itoa(count)}}
}
