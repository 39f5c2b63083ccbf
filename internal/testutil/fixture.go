// Package testutil provides an in-process test fixture standing in for the
// teacher's container-backed gittest.NewServer: a fully wired githost
// transport.Server backed entirely by in-memory components, so protocol
// and wiring tests never need a Docker daemon or a real upstream Git
// implementation.
package testutil

import (
	"context"
	"fmt"
	"math/rand"
	"net/http/httptest"

	"githost.dev/githost/cdc"
	"githost.dev/githost/hooks"
	"githost.dev/githost/objectstore"
	"githost.dev/githost/policy"
	"githost.dev/githost/protocol/object"
	"githost.dev/githost/refstore"
	"githost.dev/githost/transport"
)

// Fixture bundles an in-memory-backed transport.Server with handles to its
// repositories so tests can seed objects/refs and assert on them directly.
type Fixture struct {
	Server *transport.Server
	HTTP   *httptest.Server
	Repos  map[string]*transport.RepositoryContext
}

// NewFixture wires a Fixture with the given repository ids, each backed by
// a fresh in-memory object store, ref store, branch-protection evaluator,
// and hook executor. Call Close when done to shut down the HTTP listener.
func NewFixture(repoIDs ...string) *Fixture {
	repos := make(map[string]*transport.RepositoryContext, len(repoIDs))
	var ctxList []*transport.RepositoryContext
	for _, id := range repoIDs {
		rc := NewRepository(id)
		repos[id] = rc
		ctxList = append(ctxList, rc)
	}

	srv := transport.NewServer(transport.NewMemoryResolver(ctxList...), transport.AllowAllOracle{}, transport.AllowAllOracle{}, nil)
	httpSrv := httptest.NewServer(srv)

	return &Fixture{Server: srv, HTTP: httpSrv, Repos: repos}
}

// NewRepository builds one in-memory-backed RepositoryContext, usable on
// its own without an enclosing Fixture.
func NewRepository(id string) *transport.RepositoryContext {
	hot := objectstore.NewMemoryBackend(objectstore.TierHot)
	store := objectstore.NewTieredStore(
		objectstore.NewLRU(objectstore.WithMaxCount(10_000)),
		hot, nil, nil,
		objectstore.NewMemoryLocationIndex(),
	)
	seq := &cdc.SequenceGenerator{}

	return &transport.RepositoryContext{
		ID:        id,
		Objects:   store,
		Refs:      refstore.NewMemoryStore(),
		Evaluator: policy.NewEvaluator(nil),
		Hooks:     hooks.NewExecutor(hooks.NewRegistry(), nil),
		Sequence:  seq,
	}
}

// Close shuts down the fixture's HTTP listener.
func (f *Fixture) Close() {
	f.HTTP.Close()
}

// SeedCommit stores a single-file commit (blob + tree + commit) in repo's
// object store and returns the commit sha.
func SeedCommit(ctx context.Context, repo *transport.RepositoryContext, path, content string) (string, error) {
	blobSha, err := repo.Objects.Put(ctx, object.TypeBlob, []byte(content))
	if err != nil {
		return "", fmt.Errorf("testutil: put blob: %w", err)
	}

	rawSha, err := decodeHexSha(blobSha)
	if err != nil {
		return "", fmt.Errorf("testutil: decode blob sha: %w", err)
	}
	treeData := append([]byte(fmt.Sprintf("100644 %s\x00", path)), rawSha...)
	treeSha, err := repo.Objects.Put(ctx, object.TypeTree, treeData)
	if err != nil {
		return "", fmt.Errorf("testutil: put tree: %w", err)
	}

	commitData := []byte(fmt.Sprintf(
		"tree %s\nauthor Fixture <fixture@example.com> 0 +0000\ncommitter Fixture <fixture@example.com> 0 +0000\n\n%s\n",
		treeSha, RandomWord(),
	))
	commitSha, err := repo.Objects.Put(ctx, object.TypeCommit, commitData)
	if err != nil {
		return "", fmt.Errorf("testutil: put commit: %w", err)
	}
	return commitSha, nil
}

func decodeHexSha(sha string) ([]byte, error) {
	if len(sha) != 40 {
		return nil, fmt.Errorf("testutil: sha %q is not 40 hex characters", sha)
	}
	raw := make([]byte, 20)
	for i := range raw {
		var b byte
		if _, err := fmt.Sscanf(sha[i*2:i*2+2], "%02x", &b); err != nil {
			return nil, err
		}
		raw[i] = b
	}
	return raw, nil
}

// RandomWord returns a short pseudo-random token, useful for making commit
// messages and repo names unique across test runs without pulling in a
// UUID dependency just for test scaffolding.
func RandomWord() string {
	const letters = "abcdefghijklmnopqrstuvwxyz0123456789"
	b := make([]byte, 8)
	for i := range b {
		b[i] = letters[rand.Intn(len(letters))]
	}
	return string(b)
}
