package protocol

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func sampleObjectSha(fill byte) string {
	b := make([]byte, 40)
	for i := range b {
		b[i] = fill
	}
	return string(b)
}

func TestParseRefUpdateCommand_Create(t *testing.T) {
	t.Parallel()
	newSha := sampleObjectSha('a')
	line := []byte(ZeroSha + " " + newSha + " refs/heads/main")

	cmd, err := ParseRefUpdateCommand(line)
	require.NoError(t, err)
	require.Equal(t, RefUpdateCreate, cmd.Kind)
	require.Equal(t, ZeroSha, cmd.OldSha)
	require.Equal(t, newSha, cmd.NewSha)
	require.Equal(t, "refs/heads/main", cmd.RefName)
}

func TestParseRefUpdateCommand_Update(t *testing.T) {
	t.Parallel()
	oldSha, newSha := sampleObjectSha('a'), sampleObjectSha('b')
	line := []byte(oldSha + " " + newSha + " refs/heads/main")

	cmd, err := ParseRefUpdateCommand(line)
	require.NoError(t, err)
	require.Equal(t, RefUpdateUpdate, cmd.Kind)
}

func TestParseRefUpdateCommand_Delete(t *testing.T) {
	t.Parallel()
	oldSha := sampleObjectSha('a')
	line := []byte(oldSha + " " + ZeroSha + " refs/heads/main")

	cmd, err := ParseRefUpdateCommand(line)
	require.NoError(t, err)
	require.Equal(t, RefUpdateDelete, cmd.Kind)
}

func TestParseRefUpdateCommand_BothZeroIsRejected(t *testing.T) {
	t.Parallel()
	line := []byte(ZeroSha + " " + ZeroSha + " refs/heads/main")

	_, err := ParseRefUpdateCommand(line)
	require.ErrorIs(t, err, ErrMalformedRefUpdateCommand)
}

func TestParseRefUpdateCommand_MissingField(t *testing.T) {
	t.Parallel()
	_, err := ParseRefUpdateCommand([]byte(ZeroSha + " " + sampleObjectSha('a')))
	require.ErrorIs(t, err, ErrMalformedRefUpdateCommand)
}

func TestParseRefUpdateCommand_DoesNotValidateShaSyntax(t *testing.T) {
	t.Parallel()
	newSha := sampleObjectSha('a')
	line := []byte("not-a-sha " + newSha + " refs/heads/main")

	// SHA syntax checking is the caller's job (VALIDATE_COMMANDS), so a
	// structurally well-formed line parses even with a bogus SHA.
	cmd, err := ParseRefUpdateCommand(line)
	require.NoError(t, err)
	require.Equal(t, "not-a-sha", cmd.OldSha)
}

func TestParseRefUpdateCommand_FirstLineCarriesCapabilities(t *testing.T) {
	t.Parallel()
	newSha := sampleObjectSha('a')
	line := append([]byte(ZeroSha+" "+newSha+" refs/heads/main"), 0)
	line = append(line, []byte("report-status side-band-64k")...)

	cmd, err := ParseRefUpdateCommand(line)
	require.NoError(t, err)
	require.Equal(t, "refs/heads/main", cmd.RefName)
	require.True(t, cmd.Capabilities.ReportStatus)
	require.True(t, cmd.Capabilities.SideBand64k)
}

func TestRefUpdateKind_String(t *testing.T) {
	t.Parallel()
	require.Equal(t, "create", RefUpdateCreate.String())
	require.Equal(t, "update", RefUpdateUpdate.String())
	require.Equal(t, "delete", RefUpdateDelete.String())
}
