package pagekv

import "math/rand"

const alphanumeric = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// randBytes returns n random alphanumeric bytes from an rng seeded by
// the caller, so a failing test can report the seed that reproduced
// it.
func randBytes(rng *rand.Rand, n int) []byte {
	b := make([]byte, n)
	for i := range b {
		b[i] = alphanumeric[rng.Intn(len(alphanumeric))]
	}
	return b
}

// randKeyValue returns a random key/value pair within the engine's
// length limits, for tests that need filler records rather than
// specific fixture data.
func randKeyValue(rng *rand.Rand) (key, value []byte) {
	keyLen := 1 + rng.Intn(KeyLengthLimit)
	valueLen := rng.Intn(ValueLengthLimit + 1)
	return randBytes(rng, keyLen), randBytes(rng, valueLen)
}
