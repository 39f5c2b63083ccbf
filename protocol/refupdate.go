package protocol

import (
	"bytes"
	"errors"
	"fmt"
)

// ZeroSha is the all-zeros object id Git uses to mean "no object": the old
// side of a create command, or the new side of a delete command.
const ZeroSha = "0000000000000000000000000000000000000000"

// RefUpdateKind classifies a ref-update command by its old/new SHA pair.
type RefUpdateKind int

const (
	RefUpdateCreate RefUpdateKind = iota
	RefUpdateUpdate
	RefUpdateDelete
)

func (k RefUpdateKind) String() string {
	switch k {
	case RefUpdateCreate:
		return "create"
	case RefUpdateUpdate:
		return "update"
	case RefUpdateDelete:
		return "delete"
	default:
		return fmt.Sprintf("RefUpdateKind(%d)", int(k))
	}
}

// ErrMalformedRefUpdateCommand is returned when a receive-pack command line
// does not have the shape "<old> <new> <ref-name>".
var ErrMalformedRefUpdateCommand = errors.New("malformed ref-update command line")

// RefUpdateCommand is one parsed line from a receive-pack command section:
//
//	<old-sha> <new-sha> <ref-name>[\0<capabilities>]
//
// Only the first command in a request carries the NUL-separated
// capabilities list.
type RefUpdateCommand struct {
	OldSha       string
	NewSha       string
	RefName      string
	Kind         RefUpdateKind
	Capabilities Capabilities
}

// ParseRefUpdateCommand parses a single receive-pack command line, with any
// trailing newline already stripped by the caller.
func ParseRefUpdateCommand(line []byte) (RefUpdateCommand, error) {
	body := line
	var caps Capabilities
	if idx := bytes.IndexByte(line, 0); idx != -1 {
		caps = ParseCapabilities(string(line[idx+1:]))
		body = line[:idx]
	}

	fields := bytes.SplitN(body, []byte(" "), 3)
	if len(fields) != 3 {
		return RefUpdateCommand{}, fmt.Errorf("%w: %q", ErrMalformedRefUpdateCommand, line)
	}

	oldSha, newSha, refName := string(fields[0]), string(fields[1]), string(fields[2])

	// SHA syntax is deliberately not checked here: per-command validation
	// (VALIDATE_COMMANDS) is responsible for that, so a single bad SHA
	// rejects only its own ref rather than failing the whole line parse.
	if refName == "" {
		return RefUpdateCommand{}, fmt.Errorf("%w: empty ref name", ErrMalformedRefUpdateCommand)
	}

	cmd := RefUpdateCommand{
		OldSha:       oldSha,
		NewSha:       newSha,
		RefName:      refName,
		Capabilities: caps,
	}

	switch {
	case oldSha == ZeroSha && newSha == ZeroSha:
		return RefUpdateCommand{}, fmt.Errorf("%w: both old and new sha are zero", ErrMalformedRefUpdateCommand)
	case oldSha == ZeroSha:
		cmd.Kind = RefUpdateCreate
	case newSha == ZeroSha:
		cmd.Kind = RefUpdateDelete
	default:
		cmd.Kind = RefUpdateUpdate
	}

	return cmd, nil
}
