// Package dedupe implements the wrap-safe monotonic counter filter used to
// reject duplicate and reordered packets.
//
// Grounded on _examples/original_source/big-brother/src/dedupe.rs. Go's
// unsigned integer subtraction already wraps on underflow, so unlike the
// Rust source this needs no explicit wrapping_sub/wrapping_add calls.
package dedupe

import "math"

// Counter is the wire counter type: a ring of 2^32 values.
type Counter = uint32

const halfRange = math.MaxUint32 / 2

// Check reports whether counter is newer than the value currently stored at
// *stored. If it is, *stored is advanced to counter+1 and Check returns the
// number of packets that were skipped since the last accepted one (0 means
// in order). If counter is at or before the newest one already seen, *stored
// is left untouched and ok is false.
func Check(counter Counter, stored *Counter) (missed uint32, ok bool) {
	diff := counter - *stored

	if diff < halfRange {
		*stored = counter + 1
		return diff, true
	}

	return 0, false
}
