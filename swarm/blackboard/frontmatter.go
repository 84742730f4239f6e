// ABOUTME: YAML front-matter parsing for index files, delimited by '---' lines.
// ABOUTME: Also validates, via goldmark, that a body has content after the front matter.

package blackboard

import (
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
	"gopkg.in/yaml.v3"
)

// ParseFrontMatter splits content into its YAML front-matter metadata and
// markdown body. If content does not start with a "---" delimiter, meta is
// nil and body is the content unchanged.
func ParseFrontMatter(content string) (meta map[string]any, body string) {
	if !strings.HasPrefix(content, "---") {
		return nil, content
	}
	rest := content[3:]
	end := strings.Index(rest, "\n---")
	if end == -1 {
		return nil, content
	}
	yamlBlock := strings.TrimPrefix(rest[:end], "\n")
	after := rest[end+4:]
	after = strings.TrimPrefix(after, "\n")

	var m map[string]any
	if err := yaml.Unmarshal([]byte(yamlBlock), &m); err != nil {
		return nil, content
	}
	return m, after
}

// RenderFrontMatter reassembles metadata and body into a "---"-delimited
// document. meta is a map, so key order is whatever yaml.v3 produces for
// it (sorted keys), not the order of the original file (used by
// update_task, which only ever rewrites an already-parsed map).
func RenderFrontMatter(meta map[string]any, body string) (string, error) {
	if meta == nil {
		return body, nil
	}
	out, err := yaml.Marshal(meta)
	if err != nil {
		return "", err
	}
	return "---\n" + string(out) + "---\n" + body, nil
}

// validateMarkdownBody confirms body parses to at least one markdown
// block. goldmark's parser never errors on malformed markdown (by design
// it degrades gracefully, rendering anything it doesn't recognize as
// prose), so a bad call here can't be caught by a parse failure — only by
// an empty tree, which happens when body is blank or whitespace-only
// after the YAML front matter has been stripped. That's the one case
// worth rejecting before a write: an index saved with no body at all.
func validateMarkdownBody(body string) bool {
	md := goldmark.New()
	reader := text.NewReader([]byte(body))
	doc := md.Parser().Parse(reader)
	return doc.Kind() == ast.KindDocument && doc.FirstChild() != nil
}
