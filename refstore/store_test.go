package refstore

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMemoryStore_CasUpdate_CreateUpdateDelete(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := NewMemoryStore()

	require.NoError(t, s.CasUpdate(ctx, "refs/heads/main", "", strings.Repeat("a", 40), KindDirect))

	ref, err := s.Get(ctx, "refs/heads/main")
	require.NoError(t, err)
	require.Equal(t, strings.Repeat("a", 40), ref.Target)

	err = s.CasUpdate(ctx, "refs/heads/main", strings.Repeat("a", 40), strings.Repeat("b", 40), KindDirect)
	require.NoError(t, err)

	err = s.CasUpdate(ctx, "refs/heads/main", "", strings.Repeat("c", 40), KindDirect)
	require.ErrorIs(t, err, ErrCasMismatch)

	require.NoError(t, s.CasUpdate(ctx, "refs/heads/main", strings.Repeat("b", 40), "", KindDirect))
	_, err = s.Get(ctx, "refs/heads/main")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStore_Resolve_Symbolic(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := NewMemoryStore()

	sha := strings.Repeat("d", 40)
	require.NoError(t, s.CasUpdate(ctx, "refs/heads/main", "", sha, KindDirect))
	require.NoError(t, s.CasUpdate(ctx, "HEAD", "", "refs/heads/main", KindSymbolic))

	ref, err := s.Resolve(ctx, "HEAD", MaxSymbolicDepth)
	require.NoError(t, err)
	require.Equal(t, sha, ref.Target)
	require.Equal(t, KindDirect, ref.Kind)
}

func TestMemoryStore_Resolve_CycleFails(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := NewMemoryStore()

	require.NoError(t, s.CasUpdate(ctx, "refs/a", "", "refs/b", KindSymbolic))
	require.NoError(t, s.CasUpdate(ctx, "refs/b", "", "refs/a", KindSymbolic))

	_, err := s.Resolve(ctx, "refs/a", MaxSymbolicDepth)
	require.ErrorIs(t, err, ErrCircularRef)
}

func TestMemoryStore_Resolve_AcyclicChainTooLongFails(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := NewMemoryStore()

	// A strictly increasing chain refs/r0 -> refs/r1 -> ... -> refs/rN never
	// revisits a name, so it must fail on depth rather than on a cycle.
	const chainLen = 5
	for i := 0; i < chainLen; i++ {
		require.NoError(t, s.CasUpdate(ctx, fmt.Sprintf("refs/r%d", i), "", fmt.Sprintf("refs/r%d", i+1), KindSymbolic))
	}
	require.NoError(t, s.CasUpdate(ctx, fmt.Sprintf("refs/r%d", chainLen), "", strings.Repeat("9", 40), KindDirect))

	_, err := s.Resolve(ctx, "refs/r0", chainLen-1)
	require.ErrorIs(t, err, ErrMaxDepthExceeded)
}

func TestMemoryStore_List_Prefix(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := NewMemoryStore()

	require.NoError(t, s.CasUpdate(ctx, "refs/heads/main", "", strings.Repeat("1", 40), KindDirect))
	require.NoError(t, s.CasUpdate(ctx, "refs/heads/dev", "", strings.Repeat("2", 40), KindDirect))
	require.NoError(t, s.CasUpdate(ctx, "refs/tags/v1", "", strings.Repeat("3", 40), KindDirect))

	refs, err := s.List(ctx, "refs/heads/")
	require.NoError(t, err)
	require.Len(t, refs, 2)
}

func TestMemoryStore_OnUpdate_FiresOncePerMutation(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := NewMemoryStore()

	var calls int
	s.OnUpdate(func(_ context.Context, name, oldTarget, newTarget string, deleted bool) {
		calls++
	})

	require.NoError(t, s.CasUpdate(ctx, "refs/heads/main", "", strings.Repeat("1", 40), KindDirect))
	require.NoError(t, s.CasUpdate(ctx, "refs/heads/main", strings.Repeat("1", 40), strings.Repeat("2", 40), KindDirect))
	require.Equal(t, 2, calls)
}

func TestMemoryStore_PackedRefs(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := NewMemoryStore()

	require.NoError(t, s.WritePacked(ctx, []Ref{{Name: "refs/tags/v1", Target: strings.Repeat("9", 40), Kind: KindDirect}}))

	ref, err := s.Get(ctx, "refs/tags/v1")
	require.NoError(t, err)
	require.Equal(t, strings.Repeat("9", 40), ref.Target)

	packed, err := s.ListPacked(ctx)
	require.NoError(t, err)
	require.Len(t, packed, 1)
}

func TestProjection_WritesJSONLAndClosesCleanly(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	proj := NewProjection(&buf, 8, nil)

	cb := proj.Callback()
	cb(context.Background(), "refs/heads/main", "", strings.Repeat("a", 40), false)

	require.NoError(t, proj.Close())
	require.Contains(t, buf.String(), "refs/heads/main")
}
