package transport

import "context"

// memoryResolver is a RepositoryResolver over a fixed, pre-populated set of
// RepositoryContexts, used by the in-process fixture and by tests.
type memoryResolver struct {
	repos map[string]*RepositoryContext
}

// NewMemoryResolver returns a RepositoryResolver serving exactly the given
// repositories, keyed by their ID.
func NewMemoryResolver(repos ...*RepositoryContext) RepositoryResolver {
	m := &memoryResolver{repos: make(map[string]*RepositoryContext, len(repos))}
	for _, repo := range repos {
		m.repos[repo.ID] = repo
	}
	return m
}

func (m *memoryResolver) Resolve(_ context.Context, repositoryID string) (*RepositoryContext, error) {
	repo, ok := m.repos[repositoryID]
	if !ok {
		return nil, ErrRepositoryNotFound
	}
	return repo, nil
}
