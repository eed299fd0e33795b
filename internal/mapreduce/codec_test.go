package mapreduce

import (
	"bytes"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteReadKVRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	records := []KV{{Key: "a", Value: "1"}, {Key: "bb", Value: ""}, {Key: "", Value: "ccc"}}
	for _, kv := range records {
		require.NoError(t, WriteKV(&buf, kv))
	}

	for _, want := range records {
		got, err := ReadKV(&buf)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}

	_, err := ReadKV(&buf)
	assert.ErrorIs(t, err, io.EOF)
}
