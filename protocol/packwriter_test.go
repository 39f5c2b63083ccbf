package protocol

import (
	"testing"

	"github.com/stretchr/testify/require"

	"githost.dev/githost/protocol/object"
)

func TestWritePackfile_RoundtripsThroughParsePackfile(t *testing.T) {
	t.Parallel()

	objects := []PackObject{
		{Type: object.TypeBlob, Data: []byte("hello world")},
		{Type: object.TypeBlob, Data: []byte("a second blob, slightly longer than the first one")},
	}

	packed, err := WritePackfile(objects)
	require.NoError(t, err)

	pf, err := ParsePackfile(packed)
	require.NoError(t, err)
	require.Equal(t, uint32(2), pf.Version)
	require.Len(t, pf.Objects, 2)

	resolved, err := ResolveDeltas(pf, nil)
	require.NoError(t, err)
	require.Len(t, resolved, 2)
	require.Equal(t, []byte("hello world"), resolved[0].Data)
	require.Equal(t, object.TypeBlob, resolved[0].Type)
}

func TestWritePackfile_Empty(t *testing.T) {
	t.Parallel()
	packed, err := WritePackfile(nil)
	require.NoError(t, err)

	pf, err := ParsePackfile(packed)
	require.NoError(t, err)
	require.Empty(t, pf.Objects)
}
