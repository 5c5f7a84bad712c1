package utils

// GetOrDefault returns the value if the pointer is not nil, otherwise returns the default value
func GetOrDefault[T any](ptr *T, defaultVal T) T {
	if ptr == nil {
		return defaultVal
	}
	return *ptr
}

// StringPtrOrNil returns nil for empty strings so optional columns stay NULL.
func StringPtrOrNil(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func Uint32Ptr(v uint32) *uint32 {
	return &v
}
