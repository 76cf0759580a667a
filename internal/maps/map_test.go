package maps

import (
	"math/rand"
	"sort"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	keySpace = 1024
)

// --- RWMutexMap (Benchmark Baseline Only) ---

type RWMutexMap[K Integer, V any] struct {
	mu sync.RWMutex
	m  map[K]V
}

func NewRWMutexMap[K Integer, V any]() ConcurrentMap[K, V] {
	return &RWMutexMap[K, V]{m: make(map[K]V)}
}
func (m *RWMutexMap[K, V]) Load(key K) (V, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	val, ok := m.m[key]
	return val, ok
}
func (m *RWMutexMap[K, V]) Store(key K, value V) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.m[key] = value
}
func (m *RWMutexMap[K, V]) LoadAndDelete(key K) (V, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	val, exists := m.m[key]
	if exists {
		delete(m.m, key)
	}
	return val, exists
}
func (m *RWMutexMap[K, V]) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.m)
}
func (m *RWMutexMap[K, V]) Range(f func(key K, value V) bool) {
	m.mu.RLock()
	copiedMap := make(map[K]V, len(m.m))
	for k, v := range m.m {
		copiedMap[k] = v
	}
	m.mu.RUnlock()

	for k, v := range copiedMap {
		if !f(k, v) {
			return
		}
	}
}

// --- Behaviour shared by every implementation ---

func implementations() map[string]func() ConcurrentMap[uint32, string] {
	return map[string]func() ConcurrentMap[uint32, string]{
		ImplXSync:   NewXSyncMap[uint32, string],
		ImplSharded: NewShardedMap[uint32, string],
		ImplCornelk: NewCornelkMap[uint32, string],
		ImplSync:    NewStdSyncMap[uint32, string],
	}
}

func TestConcurrentMapContract(t *testing.T) {
	for name, newMap := range implementations() {
		t.Run(name, func(t *testing.T) {
			m := newMap()
			assert.Equal(t, 0, m.Len())

			_, ok := m.Load(4)
			assert.False(t, ok)

			m.Store(4, "System")
			m.Store(8, "smss.exe")
			v, ok := m.Load(4)
			require.True(t, ok)
			assert.Equal(t, "System", v)
			assert.Equal(t, 2, m.Len())

			m.Store(8, "smss.exe (restarted)")
			v, _ = m.Load(8)
			assert.Equal(t, "smss.exe (restarted)", v, "Store replaces")
			assert.Equal(t, 2, m.Len())

			v, ok = m.LoadAndDelete(8)
			assert.True(t, ok)
			assert.Equal(t, "smss.exe (restarted)", v)
			_, ok = m.LoadAndDelete(8)
			assert.False(t, ok)

			_, ok = m.LoadAndDelete(4)
			assert.True(t, ok)
			assert.Equal(t, 0, m.Len())
		})
	}
}

func TestConcurrentMapRange(t *testing.T) {
	for name, newMap := range implementations() {
		t.Run(name, func(t *testing.T) {
			m := newMap()
			for i := uint32(1); i <= 100; i++ {
				m.Store(i, "p")
			}

			var keys []int
			m.Range(func(k uint32, _ string) bool {
				keys = append(keys, int(k))
				return true
			})
			sort.Ints(keys)
			require.Len(t, keys, 100)
			assert.Equal(t, 1, keys[0])
			assert.Equal(t, 100, keys[99])

			visited := 0
			m.Range(func(uint32, string) bool {
				visited++
				return visited < 10
			})
			assert.Equal(t, 10, visited, "returning false stops the iteration")
		})
	}
}

func TestNewConcurrentMapFallsBackToXSync(t *testing.T) {
	assert.IsType(t, &XSyncMap[uint32, int]{}, NewConcurrentMap[uint32, int]("btree"))
	assert.IsType(t, &ShardedMap[uint32, int]{}, NewConcurrentMap[uint32, int](ImplSharded))
	assert.IsType(t, &CornelkMap[uint32, int]{}, NewConcurrentMap[uint32, int](ImplCornelk))
	assert.IsType(t, &StdSyncMap[uint32, int]{}, NewConcurrentMap[uint32, int](ImplSync))
}

// The tracker releases vanished pids while other pids are being added. Every
// released value must come out exactly once.
func TestConcurrentReleaseOnce(t *testing.T) {
	for name, newMap := range map[string]func() ConcurrentMap[uint32, string]{
		ImplXSync:   NewXSyncMap[uint32, string],
		ImplSharded: NewShardedMap[uint32, string],
		ImplSync:    NewStdSyncMap[uint32, string],
	} {
		t.Run(name, func(t *testing.T) {
			m := newMap()
			for i := uint32(0); i < keySpace; i++ {
				m.Store(i, "old")
			}

			var released atomic.Int64
			var wg sync.WaitGroup
			for g := 0; g < 8; g++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					m.Range(func(k uint32, _ string) bool {
						if k >= keySpace {
							return true
						}
						if _, ok := m.LoadAndDelete(k); ok {
							released.Add(1)
						}
						return true
					})
				}()
			}
			wg.Add(1)
			go func() {
				defer wg.Done()
				for i := uint32(keySpace); i < 2*keySpace; i++ {
					m.Store(i, "new")
				}
			}()
			wg.Wait()

			assert.Equal(t, int64(keySpace), released.Load()+countValue(m, "old"))
			assert.Equal(t, keySpace, countValue(m, "new"))
		})
	}
}

func countValue(m ConcurrentMap[uint32, string], want string) int {
	n := 0
	m.Range(func(k uint32, v string) bool {
		if v == want {
			n++
		}
		return true
	})
	return n
}

// --- Benchmark Runners ---

// runMixedWorkloadBenchmark simulates N goroutines each performing a mix of operations.
func runMixedWorkloadBenchmark(b *testing.B, bm ConcurrentMap[uint32, *int64], readRatio int, writers int) {
	var v int64 = 1
	for i := range keySpace {
		bm.Store(uint32(i), &v)
	}
	b.ResetTimer()
	b.SetParallelism(writers)
	b.RunParallel(func(pb *testing.PB) {
		r := rand.New(rand.NewSource(rand.Int63()))
		for pb.Next() {
			key := r.Uint32() % keySpace
			if r.Intn(100) < readRatio {
				_, _ = bm.Load(key)
			} else {
				bm.Store(key, &v)
			}
		}
	})
}

// runChurnBenchmark simulates one refresh tick: walk the table, release a
// slice of it and insert the same number of new pids.
func runChurnBenchmark(b *testing.B, bm ConcurrentMap[uint32, *int64], writers int) {
	var v int64 = 1
	for i := range keySpace {
		bm.Store(uint32(i), &v)
	}
	b.ResetTimer()
	b.SetParallelism(writers)
	b.RunParallel(func(pb *testing.PB) {
		r := rand.New(rand.NewSource(rand.Int63()))
		for pb.Next() {
			key := r.Uint32() % keySpace
			if _, ok := bm.LoadAndDelete(key); !ok {
				bm.Store(key, &v)
			}
			if key%64 == 0 {
				bm.Range(func(uint32, *int64) bool { return true })
			}
		}
	})
}

// --- Main Benchmark Function ---

func BenchmarkMaps(b *testing.B) {
	workloads := []struct {
		name    string
		threads int
	}{
		{"1_Thread", 1},
		{"2_Threads", 2},
		{"Max_Threads_(Generic)", -1}, // -1 will use b.N
	}

	b.Run("Pattern_Refresh_Churn", func(b *testing.B) {
		mapsToTest := []struct {
			name string
			m    ConcurrentMap[uint32, *int64]
		}{
			{"SyncMap", NewStdSyncMap[uint32, *int64]()},
			{"RWMutexMap", NewRWMutexMap[uint32, *int64]()},
			{"ShardedMap", NewShardedMap[uint32, *int64]()},
			{"CornelkHashMap", NewCornelkMap[uint32, *int64]()},
			{"XSyncMapV4", NewXSyncMap[uint32, *int64]()},
		}
		for _, wl := range workloads {
			b.Run(wl.name, func(b *testing.B) {
				for _, mt := range mapsToTest {
					b.Run(mt.name, func(b *testing.B) {
						runChurnBenchmark(b, mt.m, wl.threads)
					})
				}
			})
		}
	})

	b.Run("Pattern_LoadStore_Simple", func(b *testing.B) {
		mapsToTest := []struct {
			name string
			m    ConcurrentMap[uint32, *int64]
		}{
			{"SyncMap", NewStdSyncMap[uint32, *int64]()},
			{"RWMutexMap", NewRWMutexMap[uint32, *int64]()},
			{"ShardedMap", NewShardedMap[uint32, *int64]()},
			{"CornelkHashMap", NewCornelkMap[uint32, *int64]()},
			{"XSyncMapV4", NewXSyncMap[uint32, *int64]()},
		}
		for _, wl := range workloads {
			b.Run(wl.name, func(b *testing.B) {
				b.Run("ReadHeavy_90R_10W", func(b *testing.B) {
					for _, mt := range mapsToTest {
						b.Run(mt.name, func(b *testing.B) {
							runMixedWorkloadBenchmark(b, mt.m, 90, wl.threads)
						})
					}
				})
				b.Run("WriteHeavy_10R_90W", func(b *testing.B) {
					for _, mt := range mapsToTest {
						b.Run(mt.name, func(b *testing.B) {
							runMixedWorkloadBenchmark(b, mt.m, 10, wl.threads)
						})
					}
				})
			})
		}
	})
}
