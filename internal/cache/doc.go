// Package cache provides a small generic LRU cache for values that are
// expensive to build and cheap to keep, such as translated shader
// binaries.
//
//	c := cache.New[string, []uint32](64)
//	words, err := c.GetOrCreate(source, func() ([]uint32, error) {
//		return translate(source)
//	})
//
// Cache is safe for concurrent use and must not be copied after creation.
package cache
