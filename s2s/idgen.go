package s2s

import (
	"github.com/pborman/uuid"
)

// randomBytes returns n bytes cut from successive version-4 UUIDs of
// pborman/uuid (the same dependency the teacher's c2s
// stream uses for connection ids) so stream-id generation doesn't need a
// second randomness primitive. The version and variant bits of each
// 16-byte UUID are fixed, so bytes 6 and 8 of every block are not fully
// random.
func randomBytes(n int) []byte {
	out := make([]byte, 0, n)
	for len(out) < n {
		u := uuid.NewRandom()
		out = append(out, []byte(u)...)
	}
	return out[:n]
}
