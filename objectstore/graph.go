package objectstore

import (
	"context"
	"fmt"

	"githost.dev/githost/protocol/object"
)

// Reachable returns every object sha reachable from wants (commits, and
// transitively their trees, blobs, and parents) that is NOT also reachable
// from haves. This is the object set upload-pack needs to pack for a
// fetch: everything the client asked for, minus everything it already has.
func Reachable(ctx context.Context, store Store, wants, haves []string) ([]string, error) {
	exclude := shaSet{}
	if err := walkClosure(ctx, store, haves, exclude, nil); err != nil {
		return nil, fmt.Errorf("objectstore: walk haves: %w", err)
	}

	var order []string
	include := shaSet{}
	if err := walkClosure(ctx, store, wants, include, func(sha string) bool {
		return !exclude.has(sha)
	}); err != nil {
		return nil, fmt.Errorf("objectstore: walk wants: %w", err)
	}
	for sha := range include {
		if !exclude.has(sha) {
			order = append(order, sha)
		}
	}
	return order, nil
}

// IsAncestor reports whether ancestor is reachable from descendant by
// following commit parent links (a fast-forward from ancestor to descendant
// exists iff this is true). A sha equal to itself counts as its own
// ancestor. protocol.ZeroSha never resolves to an object, so it is never an
// ancestor of anything; a descendant of protocol.ZeroSha only satisfies the
// check when ancestor is also protocol.ZeroSha.
func IsAncestor(ctx context.Context, store Store, ancestor, descendant string) (bool, error) {
	if ancestor == descendant {
		return true, nil
	}
	if ancestor == "" || descendant == "" {
		return false, nil
	}

	visited := shaSet{}
	stack := []string{descendant}
	for len(stack) > 0 {
		sha := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if sha == "" || visited.has(sha) {
			continue
		}
		visited.add(sha)
		if sha == ancestor {
			return true, nil
		}

		obj, err := store.Get(ctx, sha)
		if err != nil {
			if err == ErrNotFound {
				continue
			}
			return false, fmt.Errorf("objectstore: is-ancestor: %w", err)
		}
		if obj.Type != object.TypeCommit {
			continue
		}
		commit, err := object.ParseCommit(obj.Data)
		if err != nil {
			return false, fmt.Errorf("objectstore: is-ancestor: parse commit %s: %w", sha, err)
		}
		stack = append(stack, commit.Parents...)
	}
	return false, nil
}

// walkClosure performs a DFS over commit/tree/blob/tag reachability
// starting at roots, adding every visited sha to visited. filter, if
// non-nil, is consulted before descending into a given sha's children;
// returning false prunes that whole subtree (used to stop descending once
// we've crossed into territory the client already has).
func walkClosure(ctx context.Context, store Store, roots []string, visited shaSet, filter func(string) bool) error {
	stack := append([]string(nil), roots...)
	for len(stack) > 0 {
		sha := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if sha == "" || visited.has(sha) {
			continue
		}
		if filter != nil && !filter(sha) {
			continue
		}
		visited.add(sha)

		obj, err := store.Get(ctx, sha)
		if err != nil {
			if err == ErrNotFound {
				continue // shallow clones and thin fetches can reference objects outside the store
			}
			return err
		}

		switch obj.Type {
		case object.TypeCommit:
			commit, err := object.ParseCommit(obj.Data)
			if err != nil {
				return fmt.Errorf("parse commit %s: %w", sha, err)
			}
			stack = append(stack, commit.Tree)
			stack = append(stack, commit.Parents...)
		case object.TypeTree:
			entries, err := object.ParseTree(obj.Data)
			if err != nil {
				return fmt.Errorf("parse tree %s: %w", sha, err)
			}
			for _, entry := range entries {
				stack = append(stack, entry.Sha)
			}
		case object.TypeTag:
			// A tag object is packed as-is when it's directly wanted or
			// reachable; it is not automatically expanded to its target here.
			// Peeling a ref's tag to its underlying commit for advertisement
			// purposes is done by the ref-advertisement layer, not this walk.
		}
	}
	return nil
}
