// Package util holds small generic helpers.
package util

// Ptr returns a pointer to v, for optional fields such as
// am.ServerConfig.Port and store.Patch.
func Ptr[T any](v T) *T {
	return &v
}
