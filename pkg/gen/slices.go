package gen

// DeleteFromSliceUnordered removes the element at index i, by moving the last element into its place.
// The order of the remaining elements is not preserved.
func DeleteFromSliceUnordered[T any](s []T, i int) []T {
	s[i] = s[len(s)-1]
	var zero T
	s[len(s)-1] = zero
	return s[:len(s)-1]
}
