package object

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseTag_AnnotatedTagOfCommit(t *testing.T) {
	data := []byte("object " + sampleSha('1') + "\n" +
		"type commit\n" +
		"tag v1.0.0\n" +
		"tagger Jane Doe <jane@example.com> 1700000000 +0000\n" +
		"\n" +
		"release notes\n")

	tag, err := ParseTag(data)
	require.NoError(t, err)
	require.Equal(t, sampleSha('1'), tag.Object)
	require.Equal(t, TypeCommit, tag.Type)
	require.Equal(t, "v1.0.0", tag.Tag)
	require.Equal(t, "release notes", tag.Message)

	id, err := tag.TaggerIdentity()
	require.NoError(t, err)
	require.Equal(t, "Jane Doe", id.Name)
}

func TestParseTag_MissingObjectIsAnError(t *testing.T) {
	_, err := ParseTag([]byte("type commit\ntag v1.0.0\n\nmessage\n"))
	require.Error(t, err)
}

func TestParseTag_MalformedHeaderLine(t *testing.T) {
	_, err := ParseTag([]byte("object-without-a-space\n\nmessage\n"))
	require.Error(t, err)
}
