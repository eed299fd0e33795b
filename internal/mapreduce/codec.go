package mapreduce

import (
	"encoding/binary"
	"io"
)

// WriteKV appends a length-prefixed (key, value) record to w: a record is
// uint32(len(key)) + key bytes + uint32(len(value)) + value bytes. This is
// the on-disk format of every intermediate partition (spec.md 6).
func WriteKV(w io.Writer, kv KV) error {
	if err := writeLenPrefixed(w, []byte(kv.Key)); err != nil {
		return err
	}
	return writeLenPrefixed(w, []byte(kv.Value))
}

func writeLenPrefixed(w io.Writer, b []byte) error {
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(b)))
	if _, err := w.Write(lenBuf[:]); err != nil {
		return err
	}
	_, err := w.Write(b)
	return err
}

// ReadKV reads one length-prefixed (key, value) record from r, returning
// io.EOF once the stream is exhausted at a record boundary.
func ReadKV(r io.Reader) (KV, error) {
	key, err := readLenPrefixed(r)
	if err != nil {
		return KV{}, err
	}
	value, err := readLenPrefixed(r)
	if err != nil {
		return KV{}, err
	}
	return KV{Key: string(key), Value: string(value)}, nil
}

func readLenPrefixed(r io.Reader) ([]byte, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return nil, err
	}
	n := binary.BigEndian.Uint32(lenBuf[:])
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, err
	}
	return buf, nil
}
