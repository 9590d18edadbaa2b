package cache

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/capadapt/capadapt/internal/adapter"
)

type Describer interface {
	adapter.Adapter
	Describe() string
}

var describerFamily = adapter.FamilyOf[Describer]()

type describer struct {
	text string
}

func (d *describer) AdapterFamily() adapter.Family { return describerFamily }
func (d *describer) Describe() string              { return d.text }

func newDescriberResolver(t *testing.T, regs ...adapter.Registration) *adapter.Resolver {
	t.Helper()
	reg := adapter.NewRegistry()
	require.NoError(t, reg.Register(regs...))
	require.NoError(t, reg.Register(adapter.DeclareFallback[Describer](func(any) *describer {
		return &describer{text: "unknown"}
	})))
	require.NoError(t, reg.Seal())
	res, err := adapter.NewResolver(reg)
	require.NoError(t, err)
	return res
}

func describe(t *testing.T, c adapter.Adaptable) string {
	t.Helper()
	d, err := adapter.As[Describer](c)
	require.NoError(t, err)
	return d.Describe()
}

func TestAdapt_PerCacheKind(t *testing.T) {
	res := newDescriberResolver(t,
		adapter.Declare[Describer](func(c *LRUCache) *describer {
			return &describer{text: "lru " + c.Name()}
		}),
		adapter.Declare[Describer](func(s Snapshotter) *describer {
			return &describer{text: "snapshot"}
		}),
	)

	lru := newTestLRU(t, nil, WithName("hot"), WithResolver(res))
	weighted := NewWeightedLRUCache(nil, WithName("warm"), WithResolver(res))
	t.Cleanup(func() { _ = weighted.Close() })
	persistent := newTestPersistent(t, &PersistentCacheConfig{MaxSize: 1024}, WithResolver(res))
	db := newTestDatabase(t, DatabaseConfig{InMemory: true})
	dbBound, err := NewDatabaseCache(DatabaseConfig{InMemory: true}, WithResolver(res))
	require.NoError(t, err)
	t.Cleanup(func() { _ = dbBound.Close() })

	assert.Equal(t, "lru hot", describe(t, lru))
	assert.Equal(t, "lru warm", describe(t, weighted), "embedded LRU registration is reached through the embedding")
	assert.Equal(t, "snapshot", describe(t, persistent))
	assert.Equal(t, "unknown", describe(t, dbBound))

	// db was built without a resolver and none is installed
	prev := adapter.Install(nil)
	t.Cleanup(func() { adapter.Install(prev) })
	_, err = db.Adapt(describerFamily)
	assert.ErrorIs(t, err, adapter.ErrNotInitialized)
}

func TestAdapt_WeightedOverridesEmbedded(t *testing.T) {
	res := newDescriberResolver(t,
		adapter.Declare[Describer](func(c *LRUCache) *describer {
			return &describer{text: "lru"}
		}),
		adapter.Declare[Describer](func(c *WeightedLRUCache) *describer {
			return &describer{text: "weighted"}
		}),
	)

	weighted := NewWeightedLRUCache(nil, WithResolver(res))
	t.Cleanup(func() { _ = weighted.Close() })

	assert.Equal(t, "weighted", describe(t, weighted))
	assert.Equal(t, "lru", describe(t, weighted.LRUCache), "the embedded cache keeps its own adapters")
}

func TestAdapt_MemoizedPerInstance(t *testing.T) {
	built := 0
	res := newDescriberResolver(t,
		adapter.Declare[Describer](func(c *LRUCache) *describer {
			built++
			return &describer{text: c.Name()}
		}),
	)

	a := newTestLRU(t, nil, WithName("a"), WithResolver(res))
	b := newTestLRU(t, nil, WithName("b"), WithResolver(res))

	first, err := a.Adapt(describerFamily)
	require.NoError(t, err)
	second, err := a.Adapt(describerFamily)
	require.NoError(t, err)
	assert.Same(t, first, second)

	other, err := b.Adapt(describerFamily)
	require.NoError(t, err)
	assert.NotSame(t, first, other)
	assert.Equal(t, 2, built)
}

func TestAdapt_MultiLevelUsesDefaultResolver(t *testing.T) {
	res := newDescriberResolver(t,
		adapter.Declare[Describer](func(c *MultiLevelCache) *describer {
			return &describer{text: "levels"}
		}),
	)
	prev := adapter.Install(res)
	t.Cleanup(func() { adapter.Install(prev) })

	ml := newTestMultiLevel(t, false, PolicyInclusive)
	assert.Equal(t, "levels", describe(t, ml))
	assert.Equal(t, "unknown", describe(t, ml.Levels()[0].Cache.(adapter.Adaptable)))
}
