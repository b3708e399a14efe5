package router

import (
	"regexp"
	"strings"

	"github.com/DakotaIrsik/irsiksoftwarebot/internal/markdown"
)

var (
	h3Pattern    = regexp.MustCompile(`(?m)^### (.*)$`)
	h2Pattern    = regexp.MustCompile(`(?m)^## (.*)$`)
	h1Pattern    = regexp.MustCompile(`(?m)^# (.*)$`)
	htmlComment  = regexp.MustCompile(`(?s)<!--.*?-->`)
	imagePattern = regexp.MustCompile(`!\[([^\]]*)\]\(([^)]+)\)`)
)

// ConvertMarkdown rewrites tracker-flavored markdown into a form the chat
// platform renders well: frontmatter and HTML comments are dropped, headers
// become bold, and images collapse to plain links.
func ConvertMarkdown(md string) string {
	out := h3Pattern.ReplaceAllString(markdown.StripFrontmatter(md), "**$1**")
	out = h2Pattern.ReplaceAllString(out, "**__${1}__**")
	out = h1Pattern.ReplaceAllString(out, "**__${1}__**")
	out = htmlComment.ReplaceAllString(out, "")
	out = imagePattern.ReplaceAllString(out, "[$1]($2)")
	return strings.TrimSpace(out)
}
