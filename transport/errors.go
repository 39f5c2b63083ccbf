package transport

import "errors"

var errUnrecognisedPath = errors.New("transport: path does not match a known git service endpoint")

// ErrRepositoryNotFound is returned by RepositoryResolver implementations
// when the requested repository id has no backing RepositoryContext.
var ErrRepositoryNotFound = errors.New("transport: repository not found")
