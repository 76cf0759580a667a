// Package maps provides the concurrent integer-keyed maps backing the
// process table. The implementation is chosen by configuration.
package maps

// Implementation names accepted by NewConcurrentMap.
const (
	ImplXSync   = "xsync"
	ImplSharded = "sharded"
	ImplCornelk = "cornelk"
	ImplSync    = "sync"
)

// Integer is a constraint that permits any integer type.
// All integer types are comparable.
type Integer interface {
	~int | ~int8 | ~int16 | ~int32 | ~int64 |
		~uint | ~uint8 | ~uint16 | ~uint32 | ~uint64 | ~uintptr
}

// ConcurrentMap defines a generic, thread-safe map interface for integer keys.
// This abstraction allows swapping the underlying implementation without
// changing the tracker.
type ConcurrentMap[K Integer, V any] interface {
	Load(key K) (V, bool)
	Store(key K, value V)
	LoadAndDelete(key K) (V, bool)
	Range(f func(key K, value V) bool)
	Len() int
}

// NewConcurrentMap returns the named implementation. Unknown names fall back
// to xsync.
func NewConcurrentMap[K Integer, V any](impl string) ConcurrentMap[K, V] {
	switch impl {
	case ImplXSync:
		return NewXSyncMap[K, V]()
	case ImplSharded:
		return NewShardedMap[K, V]()
	case ImplCornelk:
		return NewCornelkMap[K, V]()
	case ImplSync:
		return NewStdSyncMap[K, V]()
	default:
		// Default to the highest-performing implementation as a safe fallback.
		return NewXSyncMap[K, V]()
	}
}
