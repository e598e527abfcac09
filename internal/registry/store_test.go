package registry

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sample(profile string, services ...string) *Registry {
	reg := &Registry{
		Profile:      profile,
		Language:     "python",
		SourceRoot:   "/srv/" + profile,
		GeneratedAt:  time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC),
		GenerationID: "gen-" + profile,
		Services:     make(map[string]ServiceSignature),
		Types:        make(map[string]CompositeType),
	}
	for _, name := range services {
		reg.Services[name] = ServiceSignature{Name: name, Module: "api", Language: "python"}
	}
	return reg
}

func TestSaveAndLoadRoundTrip(t *testing.T) {
	store := NewStore(t.TempDir())

	reg := sample("support", "create_ticket", "close_ticket")
	reg.Types["Ticket"] = CompositeType{
		Name:   "Ticket",
		Module: "models",
		Fields: []ParameterSpec{{Name: "id", Type: "str", Kind: KindPrimitive}},
	}
	require.NoError(t, store.Save(reg))

	loaded, err := store.Load("support")
	require.NoError(t, err)
	assert.Equal(t, reg.GenerationID, loaded.GenerationID)
	assert.Len(t, loaded.Services, 2)
	assert.Equal(t, "Ticket", loaded.Types["Ticket"].Name)
	assert.False(t, loaded.IsMerged())
}

func TestSaveReplacesWholesale(t *testing.T) {
	store := NewStore(t.TempDir())

	require.NoError(t, store.Save(sample("p", "a", "b")))
	require.NoError(t, store.Save(sample("p", "c")))

	loaded, err := store.Load("p")
	require.NoError(t, err)
	assert.Len(t, loaded.Services, 1)
	assert.Contains(t, loaded.Services, "c")
}

func TestEmptyRescanNeverOverwrites(t *testing.T) {
	store := NewStore(t.TempDir())
	require.NoError(t, store.Save(sample("p", "a")))

	err := store.Save(sample("p"))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrEmptyRescan)

	loaded, err := store.Load("p")
	require.NoError(t, err)
	assert.Len(t, loaded.Services, 1)
}

func TestEmptySaveAllowedForNewProfile(t *testing.T) {
	store := NewStore(t.TempDir())
	assert.NoError(t, store.Save(sample("fresh")))
}

func TestSaveMergedRequiresMergedArtifact(t *testing.T) {
	store := NewStore(t.TempDir())

	plain := sample("m", "a")
	assert.Error(t, store.SaveMerged(plain))

	plain.MergedFrom = []string{"a", "b"}
	assert.NoError(t, store.SaveMerged(plain))
}

func TestLoadMissingProfile(t *testing.T) {
	store := NewStore(t.TempDir())
	_, err := store.Load("ghost")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestListAndDelete(t *testing.T) {
	store := NewStore(t.TempDir())
	require.NoError(t, store.Save(sample("b", "x")))
	require.NoError(t, store.Save(sample("a", "y")))

	profiles, err := store.List()
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, profiles)

	require.NoError(t, store.Delete("a"))
	require.NoError(t, store.Delete("a")) // idempotent

	profiles, err = store.List()
	require.NoError(t, err)
	assert.Equal(t, []string{"b"}, profiles)
}
