package util

// FalseIfNil dereferences the given bool pointer, defaulting to false.
func FalseIfNil(b *bool) bool {
	if b == nil {
		return false
	}
	return *b
}
