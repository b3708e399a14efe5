package router

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"

	"github.com/DakotaIrsik/irsiksoftwarebot/chat"
	"github.com/DakotaIrsik/irsiksoftwarebot/structure"
)

const (
	// minIssueLength is the smallest stripped draft that makes a usable
	// issue; anything shorter is rejected with a hint.
	minIssueLength = 10
	// maxTitleLength matches the tracker's issue title limit.
	maxTitleLength = 100

	commandPrefix = "!"

	featureMarker = "feature-request"
	bugMarker     = "bug-report"
)

var (
	mentionPattern = regexp.MustCompile(`<@!?\w+>`)
	readmePattern  = regexp.MustCompile(`(?i)readme\s+(\S+)`)
)

// ValidationError carries a user-facing rejection for a malformed intent.
// It is replied to the actor, never logged as a system error.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string { return e.Reason }

// StripMentions removes bot/user mention markup from message text.
func StripMentions(text string) string {
	return strings.TrimSpace(mentionPattern.ReplaceAllString(text, ""))
}

// Classify maps an inbound message to an intent. First match wins: README
// fetch, issue draft, assistant chat (all require a bot mention), then
// prefix commands. Messages that match nothing return a nil intent.
func Classify(msg chat.Message, repoPrefixes []string) (Intent, error) {
	if msg.FromBot {
		return nil, nil
	}
	text := StripMentions(msg.Text)

	if msg.MentionsBot {
		if strings.Contains(strings.ToLower(text), "readme") {
			return FetchDocs{Repo: readmeTarget(text, msg)}, nil
		}

		if issueType := issueTypeFromChannel(msg.ChannelName, repoPrefixes); issueType != "" {
			if len(text) < minIssueLength {
				return nil, &ValidationError{
					Reason: "please provide more details for the issue, format: @bot <issue title/description>",
				}
			}
			title, body := splitIssueDraft(text)
			return CreateIssue{
				Repo:      repoFromMessage(msg, repoPrefixes),
				IssueType: issueType,
				Title:     title,
				Body:      body,
			}, nil
		}

		return AssistantChat{Repo: repoFromMessage(msg, repoPrefixes), Text: text}, nil
	}

	if strings.HasPrefix(msg.Text, commandPrefix) {
		return classifyCommand(msg.Text)
	}

	return nil, nil
}

func classifyCommand(raw string) (Intent, error) {
	fields := strings.Fields(strings.TrimPrefix(raw, commandPrefix))
	if len(fields) == 0 {
		return nil, nil
	}
	command := strings.ToLower(fields[0])
	args := fields[1:]

	switch command {
	case "setup":
		return AdminSetup{}, nil
	case "addrepo":
		if len(args) < 1 {
			return nil, &ValidationError{Reason: "usage: !addrepo <repo-name> [public|private]"}
		}
		private := len(args) > 1 && strings.EqualFold(args[1], "private")
		return AdminAddRepo{RepoName: args[0], Private: private}, nil
	case "removerepo":
		if len(args) < 1 {
			return nil, &ValidationError{Reason: "usage: !removerepo <repo-prefix>"}
		}
		return AdminRemoveRepo{Prefix: args[0]}, nil
	case "addrole":
		if len(args) < 2 {
			return nil, &ValidationError{Reason: "usage: !addrole <role-name> <color-hex> [yes/no mentionable] [yes/no hoisted]"}
		}
		return AdminAddRole{Role: structure.RoleSpec{
			Name:        args[0],
			Color:       args[1],
			Mentionable: len(args) > 2 && strings.EqualFold(args[2], "yes"),
			Hoist:       len(args) > 3 && strings.EqualFold(args[3], "yes"),
		}}, nil
	case "listrepos":
		return ListRepos{}, nil
	case "purge":
		return Purge{Target: strings.Join(args, " ")}, nil
	case "clear", "reset":
		return Clear{}, nil
	case "ping":
		return Ping{}, nil
	case "help":
		return Help{}, nil
	default:
		// Unknown prefix commands are ignored silently.
		return nil, nil
	}
}

// readmeTarget picks the explicit repo from "readme <name>", else derives
// one from the message's channel context.
func readmeTarget(text string, msg chat.Message) string {
	if m := readmePattern.FindStringSubmatch(text); len(m) == 2 {
		return m[1]
	}
	return repoFromMessage(msg, nil)
}

// repoFromMessage derives a repository name from the parent category name
// with decorative symbols stripped, falling back to the channel-name prefix
// when the channel belongs to a known repository.
func repoFromMessage(msg chat.Message, repoPrefixes []string) string {
	if name := CleanRepoName(msg.CategoryName); name != "" {
		return name
	}
	if prefix := matchingPrefix(msg.ChannelName, repoPrefixes); prefix != "" {
		return prefix
	}
	return ""
}

// CleanRepoName strips pictographs and other symbols from a category name,
// keeping letters, digits and dashes in their original case.
func CleanRepoName(name string) string {
	var b strings.Builder
	for _, r := range name {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '-' {
			b.WriteRune(r)
		}
	}
	return strings.TrimSpace(b.String())
}

func issueTypeFromChannel(channelName string, repoPrefixes []string) string {
	if matchingPrefix(channelName, repoPrefixes) == "" {
		return ""
	}
	switch {
	case strings.Contains(channelName, featureMarker):
		return "feature"
	case strings.Contains(channelName, bugMarker):
		return "bug"
	default:
		return ""
	}
}

func matchingPrefix(channelName string, repoPrefixes []string) string {
	lower := strings.ToLower(channelName)
	for _, prefix := range repoPrefixes {
		if prefix == "" {
			continue
		}
		if strings.HasPrefix(lower, strings.ToLower(prefix)+"-") {
			return prefix
		}
	}
	return ""
}

// splitIssueDraft turns a draft into title and body: the first line,
// truncated to the tracker's title limit, becomes the title; remaining
// lines become the body, or the whole draft when there is only one line.
func splitIssueDraft(text string) (title, body string) {
	lines := strings.Split(text, "\n")
	title = lines[0]
	if len(title) > maxTitleLength {
		title = title[:runeSafeCut(title, maxTitleLength)]
	}
	if len(lines) > 1 {
		body = strings.Join(lines[1:], "\n")
	} else {
		body = text
	}
	return title, body
}

// IssueLabels maps an issue type to tracker labels.
func IssueLabels(issueType string) []string {
	if issueType == "feature" {
		return []string{"enhancement"}
	}
	return []string{"bug"}
}

// IssueFooter appends the attribution line the tracker issue carries.
func IssueFooter(body, author string) string {
	return fmt.Sprintf("%s\n\n---\n*Reported by %s via chat*", body, author)
}
