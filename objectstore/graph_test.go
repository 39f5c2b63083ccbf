package objectstore

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"githost.dev/githost/protocol/object"
)

func newGraphTestStore(t *testing.T) *TieredStore {
	t.Helper()
	hot := NewMemoryBackend(TierHot)
	return NewTieredStore(NewLRU(WithMaxCount(100)), hot, nil, nil, NewMemoryLocationIndex())
}

// putCommit stores a minimal commit object with the given parents and
// returns its sha.
func putCommit(t *testing.T, ctx context.Context, store *TieredStore, parents ...string) string {
	t.Helper()
	tree := strings.Repeat("a", 40)
	var body string
	body = "tree " + tree + "\n"
	for _, p := range parents {
		body += "parent " + p + "\n"
	}
	body += "author a <a@example.com> 0 +0000\n" +
		"committer a <a@example.com> 0 +0000\n" +
		"\n" +
		"commit\n"

	sha, err := store.Put(ctx, object.TypeCommit, []byte(body))
	require.NoError(t, err)
	return sha
}

func TestIsAncestor_DirectParent(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := newGraphTestStore(t)

	base := putCommit(t, ctx, store)
	head := putCommit(t, ctx, store, base)

	ok, err := IsAncestor(ctx, store, base, head)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestIsAncestor_SameShaIsItsOwnAncestor(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := newGraphTestStore(t)

	c := putCommit(t, ctx, store)

	ok, err := IsAncestor(ctx, store, c, c)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestIsAncestor_UnrelatedHistoryIsNotAncestor(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := newGraphTestStore(t)

	a := putCommit(t, ctx, store)
	// b descends from a parent that is not in the store, so its history
	// never meets a's (two parentless commits would share a's sha).
	b := putCommit(t, ctx, store, strings.Repeat("b", 40))

	ok, err := IsAncestor(ctx, store, a, b)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestIsAncestor_DescendantOlderThanAncestorIsNotAncestor(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := newGraphTestStore(t)

	base := putCommit(t, ctx, store)
	head := putCommit(t, ctx, store, base)

	// head is not reachable from base: a non-fast-forward in the other direction.
	ok, err := IsAncestor(ctx, store, head, base)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestIsAncestor_TraversesMergeCommits(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := newGraphTestStore(t)

	root := putCommit(t, ctx, store)
	branchA := putCommit(t, ctx, store, root)
	branchB := putCommit(t, ctx, store, root)
	merge := putCommit(t, ctx, store, branchA, branchB)

	ok, err := IsAncestor(ctx, store, branchB, merge)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestIsAncestor_ZeroShaIsNeverAnAncestorOfANonZeroDescendant(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := newGraphTestStore(t)

	head := putCommit(t, ctx, store)

	ok, err := IsAncestor(ctx, store, strings.Repeat("0", 40), head)
	require.NoError(t, err)
	require.False(t, ok)
}
