package utils

// Value dereferences v, yielding the zero value for nil
func Value[T any](v *T) T {
	if v == nil {
		var zero T
		return zero
	}
	return *v
}

func Ptr[T any](v T) *T {
	return &v
}

// NonZero is Ptr for set values and nil for the zero value, so optional
// tokens are absent rather than empty.
func NonZero[T comparable](v T) *T {
	var zero T
	if v == zero {
		return nil
	}
	return &v
}
