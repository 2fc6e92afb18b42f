// Package shm publishes a small state record in named shared memory.
//
// The primary instance uses it to advertise who it is (Presence); secondaries
// and the status command read it back. The record is advisory: the election
// lock alone decides who is primary.
package shm

// Size is the fixed size of every region.
const Size = 4096

// trimZeros copies the prefix of data up to its trailing zero padding.
func trimZeros(data []byte) []byte {
	n := len(data)
	for n > 0 && data[n-1] == 0 {
		n--
	}
	out := make([]byte, n)
	copy(out, data[:n])
	return out
}
