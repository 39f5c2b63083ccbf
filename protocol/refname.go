package protocol

import (
	"errors"
	"fmt"
	"strings"

	"githost.dev/githost/security"
)

// RefName is a parsed, validated reference name.
type RefName struct {
	// FullName is the entire, raw ref name, including the "refs/" prefix
	// (unless it is HEAD).
	FullName string
	// Category is the first path segment after "refs/", e.g. "heads". It is
	// "HEAD" for HEAD, and empty for a ref directly under "refs/" with no
	// further segment.
	Category string
	// Location is everything after Category, e.g. "main" or
	// "feature/test". It is "HEAD" for HEAD, and empty when there is no
	// further segment.
	Location string
}

// HEAD is a special-cased ref name that always exists and is always valid.
var HEAD = RefName{FullName: "HEAD", Category: "HEAD", Location: "HEAD"}

var (
	// ErrRefNameEmpty is returned for an empty ref name.
	ErrRefNameEmpty = errors.New("ref name is empty")

	// ErrRefNameNoPrefix is returned when a ref name is neither "HEAD" nor
	// prefixed with "refs/".
	ErrRefNameNoPrefix = errors.New("ref name does not begin with refs/ and is not HEAD")

	// ErrRefNameInvalid is returned for any other structural violation:
	// a banned character or sequence, an empty or dot-led component, or a
	// disallowed suffix.
	ErrRefNameInvalid = errors.New("ref name is invalid")
)

// ParseRefName validates and decomposes a ref name. A name is valid iff:
// non-empty; begins with "refs/" or equals "HEAD"; no component starts with
// "."; no "//", "..", "@{", space, "~", "^", ":"; no control character
// (< 0x20 or 0x7F); does not end in "/" or ".lock"; carries no absolute-path
// marker or path-traversal sequence (security.ValidateNoTraversal).
//
// Unlike the stricter v2 ls-refs convention, a single "refs/" prefix is
// sufficient — a ref is not required to carry a further category segment.
func ParseRefName(in string) (RefName, error) {
	if in == "" {
		return RefName{}, ErrRefNameEmpty
	}
	if in == "HEAD" {
		return HEAD, nil
	}

	rn := RefName{FullName: in}

	if !strings.HasPrefix(in, "refs/") {
		return rn, fmt.Errorf("%w: %q", ErrRefNameNoPrefix, in)
	}

	if err := validateRefNameSyntax(in); err != nil {
		return rn, err
	}
	if err := security.ValidateNoTraversal(in); err != nil {
		return rn, err
	}

	rest := in[len("refs/"):]
	if sep := strings.IndexRune(rest, '/'); sep != -1 {
		rn.Category = rest[:sep]
		rn.Location = rest[sep+1:]
	} else {
		rn.Category = rest
	}

	return rn, nil
}

func validateRefNameSyntax(in string) error {
	if strings.Contains(in, "//") {
		return fmt.Errorf("%w: %q contains //", ErrRefNameInvalid, in)
	}
	if strings.Contains(in, "..") {
		return fmt.Errorf("%w: %q contains ..", ErrRefNameInvalid, in)
	}
	if strings.Contains(in, "@{") {
		return fmt.Errorf("%w: %q contains @{", ErrRefNameInvalid, in)
	}
	if strings.HasSuffix(in, "/") {
		return fmt.Errorf("%w: %q ends with /", ErrRefNameInvalid, in)
	}
	if strings.HasSuffix(in, ".lock") {
		return fmt.Errorf("%w: %q ends with .lock", ErrRefNameInvalid, in)
	}

	for _, component := range strings.Split(in, "/") {
		if component == "" {
			return fmt.Errorf("%w: %q has an empty path component", ErrRefNameInvalid, in)
		}
		if strings.HasPrefix(component, ".") {
			return fmt.Errorf("%w: component %q begins with .", ErrRefNameInvalid, component)
		}
		if strings.ContainsFunc(component, isBannedRefRune) {
			return fmt.Errorf("%w: component %q contains a banned character", ErrRefNameInvalid, component)
		}
	}

	return nil
}

func isBannedRefRune(r rune) bool {
	return r < 0x20 || r == 0x7f || r == ' ' || r == '~' || r == '^' || r == ':'
}
