package schema

import (
	"testing"

	"github.com/stretchr/testify/require"

	scerrors "github.com/rtrevinnoc/siliconcompiler/pkg/errors"
)

func TestStoreSetGetRoundTrip(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	require.NoError(t, s.Set(Key("option", "flow"), "asicflow"))

	value, err := s.Get(Key("option", "flow"))
	require.NoError(t, err)
	require.Equal(t, "asicflow", value)
}

func TestStoreUnknownKeypath(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	_, err := s.Get(Key("option", "bogus"))

	var keypathErr *scerrors.KeypathError
	require.ErrorAs(t, err, &keypathErr)
	require.Equal(t, "[option,bogus] cannot be found", err.Error())

	err = s.Set(Key("option", "bogus"), "x")
	require.ErrorAs(t, err, &keypathErr)
}

func TestStoreKeypathIsNotAParameter(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	_, err := s.Get(Key("option"))
	require.ErrorContains(t, err, "[option] is not a parameter")
}

func TestStoreTemplateInstantiationOnWrite(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)

	// "yosys" does not exist yet; the write clones it from the default
	// template.
	require.NoError(t, s.Set(Key("tool", "yosys", "task"), "syn_asic"))

	value, err := s.Get(Key("tool", "yosys", "task"))
	require.NoError(t, err)
	require.Equal(t, "syn_asic", value)

	// Reads do not instantiate.
	_, err = s.Get(Key("tool", "openroad", "task"))
	require.ErrorContains(t, err, "cannot be found")
	require.False(t, s.Has(Key("tool", "openroad")))
}

func TestStoreTemplateInstancesAreIndependent(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	require.NoError(t, s.Set(Key("tool", "yosys", "task"), "syn_asic"))
	require.NoError(t, s.Set(Key("tool", "openroad", "task"), "place"))

	value, err := s.Get(Key("tool", "yosys", "task"))
	require.NoError(t, err)
	require.Equal(t, "syn_asic", value)

	value, err = s.Get(Key("tool", "openroad", "task"))
	require.NoError(t, err)
	require.Equal(t, "place", value)
}

func TestStoreRemoveInstantiatedTemplateKeys(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	require.NoError(t, s.Set(Key("tool", "yosys", "task"), "syn_asic"))
	require.NoError(t, s.Remove(Key("tool", "yosys")))
	require.False(t, s.Has(Key("tool", "yosys")))

	// Statically declared keys are not removable.
	err := s.Remove(Key("option", "flow"))
	require.ErrorContains(t, err, "is not a removable keypath")
}

func TestStoreRemoveRefusesLockedSubtrees(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	require.NoError(t, s.Set(Key("tool", "yosys", "task"), "syn_asic"))
	require.NoError(t, s.Set(Key("tool", "yosys", "task"), true, Field("lock")))

	err := s.Remove(Key("tool", "yosys"))
	require.ErrorContains(t, err, "contains locked parameters")
}

func TestStoreLockedParameterWriteIsSilentNoOp(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	require.NoError(t, s.Set(Key("option", "flow"), "asicflow"))
	require.NoError(t, s.Set(Key("option", "flow"), true, Field("lock")))

	s.Journal().Start()
	require.NoError(t, s.Set(Key("option", "flow"), "other"))

	value, err := s.Get(Key("option", "flow"))
	require.NoError(t, err)
	require.Equal(t, "asicflow", value)
	// Ineffective writes are not journaled.
	require.Empty(t, s.Journal().Entries())
}

func TestStoreKeysAndAllKeys(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	keys, err := s.Keys()
	require.NoError(t, err)
	require.Equal(t, []string{"metric", "option", "tool"}, keys)

	keys, err = s.Keys("option")
	require.NoError(t, err)
	require.Equal(t, []string{"flow", "from"}, keys)

	all := s.AllKeys()
	require.Contains(t, all, Key("option", "flow"))
	require.Contains(t, all, Key("tool", "default", "task"))
}

func TestStoreCloneIsDeepAndUnjournaled(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	s.Journal().Start()
	require.NoError(t, s.Set(Key("option", "flow"), "asicflow"))

	clone := s.Clone()
	require.False(t, clone.Journal().IsJournaling())

	require.NoError(t, clone.Set(Key("option", "flow"), "fpgaflow"))

	value, err := s.Get(Key("option", "flow"))
	require.NoError(t, err)
	require.Equal(t, "asicflow", value)

	value, err = clone.Get(Key("option", "flow"))
	require.NoError(t, err)
	require.Equal(t, "fpgaflow", value)

	// The source store's journal saw only its own write.
	require.Len(t, s.Journal().Entries(), 1)
}

func TestStoreFieldOptionsTargetMetadata(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	require.NoError(t, s.Set(Key("option", "flow"), "help text", Field("shorthelp")))

	help, err := s.Get(Key("option", "flow"), Field("shorthelp"))
	require.NoError(t, err)
	require.Equal(t, "help text", help)

	typ, err := s.Get(Key("option", "flow"), Field("type"))
	require.NoError(t, err)
	require.Equal(t, "str", typ)
}
