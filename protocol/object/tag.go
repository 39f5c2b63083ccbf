package object

import (
	"bufio"
	"bytes"
	"fmt"
	"strings"
)

// Tag is the parsed form of an annotated tag object's headers. Like Commit,
// the message body is kept as raw text.
type Tag struct {
	Object  string
	Type    Type
	Tag     string
	Tagger  string
	Message string
}

// ParseTag parses the text format of an annotated tag object: a run of "key
// value" header lines, a blank line, then the free-form message.
func ParseTag(data []byte) (*Tag, error) {
	t := &Tag{}
	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)

	inHeaders := true
	var messageLines []string
	for scanner.Scan() {
		line := scanner.Text()
		if inHeaders {
			if line == "" {
				inHeaders = false
				continue
			}
			key, value, ok := strings.Cut(line, " ")
			if !ok {
				return nil, fmt.Errorf("object: malformed tag header line %q", line)
			}
			switch key {
			case "object":
				t.Object = value
			case "type":
				t.Type = parseTypeName(value)
			case "tag":
				t.Tag = value
			case "tagger":
				t.Tagger = value
			}
			continue
		}
		messageLines = append(messageLines, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("object: scan tag: %w", err)
	}
	if t.Object == "" {
		return nil, fmt.Errorf("object: tag missing object header")
	}
	t.Message = strings.Join(messageLines, "\n")
	return t, nil
}

func parseTypeName(name string) Type {
	switch name {
	case "commit":
		return TypeCommit
	case "tree":
		return TypeTree
	case "blob":
		return TypeBlob
	case "tag":
		return TypeTag
	default:
		return TypeInvalid
	}
}

// TaggerIdentity parses the tag's raw tagger line into an Identity.
func (t *Tag) TaggerIdentity() (*Identity, error) {
	return ParseIdentity(t.Tagger)
}
