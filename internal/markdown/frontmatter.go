// Package markdown holds small helpers for markdown documents fetched from
// the tracker before they are rendered into chat messages.
package markdown

import "strings"

// StripFrontmatter removes a leading YAML frontmatter block if one exists.
// Doc-site READMEs often carry frontmatter that means nothing in chat.
func StripFrontmatter(contents string) string {
	_, body, ok := SplitFrontmatter(contents)
	if !ok {
		return contents
	}
	return body
}

// SplitFrontmatter splits a markdown document into raw YAML frontmatter and
// body. The delimiters must be a leading line "---" and a later closing
// line "---".
func SplitFrontmatter(contents string) (raw, body string, ok bool) {
	lines := strings.Split(strings.ReplaceAll(contents, "\r\n", "\n"), "\n")
	if len(lines) == 0 || strings.TrimSpace(lines[0]) != "---" {
		return "", contents, false
	}

	for i := 1; i < len(lines); i++ {
		if strings.TrimSpace(lines[i]) != "---" {
			continue
		}
		return strings.Join(lines[1:i], "\n"), strings.Join(lines[i+1:], "\n"), true
	}
	return "", contents, false
}
