package session

import (
	"testing"
)

// FuzzRecordDecode exercises the record decoder with arbitrary inputs.
// Goal: no panics, and anything that decodes must re-encode to the same bytes.
func FuzzRecordDecode(f *testing.F) {
	encoded := Encode(Record{Hash: HashToken("seed"), IssuedAt: 1700000000})
	f.Add(encoded)
	f.Add([]byte{})
	f.Add([]byte{1})
	f.Add([]byte{2})
	f.Add(encoded[:20])
	f.Add(append(append([]byte{}, encoded...), 0))

	f.Fuzz(func(t *testing.T, data []byte) {
		rec, err := Decode(data)
		if err != nil {
			return
		}
		if string(Encode(rec)) != string(data) {
			t.Fatalf("decode/encode not stable for %x", data)
		}
	})
}
