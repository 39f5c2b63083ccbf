package object

import (
	"bufio"
	"bytes"
	"fmt"
	"strings"
)

// Commit is the parsed form of a commit object's headers. The message body
// is kept as raw text; only the headers relevant to graph traversal and
// identity are pulled out.
type Commit struct {
	Tree      string
	Parents   []string
	Author    string
	Committer string
	Message   string
}

// ParseCommit parses the text format of a commit object: a run of
// "key value" header lines, a blank line, then the free-form message.
func ParseCommit(data []byte) (*Commit, error) {
	c := &Commit{}
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
				return nil, fmt.Errorf("object: malformed commit header line %q", line)
			}
			switch key {
			case "tree":
				c.Tree = value
			case "parent":
				c.Parents = append(c.Parents, value)
			case "author":
				c.Author = value
			case "committer":
				c.Committer = value
			}
			continue
		}
		messageLines = append(messageLines, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("object: scan commit: %w", err)
	}
	if c.Tree == "" {
		return nil, fmt.Errorf("object: commit missing tree header")
	}
	c.Message = strings.Join(messageLines, "\n")
	return c, nil
}

// AuthorIdentity parses the commit's raw author line into an Identity.
func (c *Commit) AuthorIdentity() (*Identity, error) {
	return ParseIdentity(c.Author)
}

// CommitterIdentity parses the commit's raw committer line into an Identity.
func (c *Commit) CommitterIdentity() (*Identity, error) {
	return ParseIdentity(c.Committer)
}
