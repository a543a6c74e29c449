package mapfn

// ConvertSlice converts a slice of type T to a slice of type R using the provided function
func ConvertSlice[T any, R any](input []T, fn func(T) R) []R {
	result := make([]R, len(input))
	for i, v := range input {
		result[i] = fn(v)
	}
	return result
}

// FilterSlice filters a slice based on the provided predicate function
func FilterSlice[T any](input []T, predicate func(T) bool) []T {
	result := make([]T, 0)
	for _, v := range input {
		if predicate(v) {
			result = append(result, v)
		}
	}
	return result
}

// GroupBy buckets slice elements by the key returned from the provided function
func GroupBy[T any, K comparable](input []T, key func(T) K) map[K][]T {
	result := make(map[K][]T)
	for _, v := range input {
		k := key(v)
		result[k] = append(result[k], v)
	}
	return result
}
