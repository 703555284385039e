package unpack200

// Fuzz is a go-fuzz entry point exercising the full NewBytes decode path
// against arbitrary input bytes.
func Fuzz(data []byte) int {
	if _, err := NewBytes(data, &Options{Fast: false}); err != nil {
		return 0
	}
	return 1
}
