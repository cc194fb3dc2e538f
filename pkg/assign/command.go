package assign

import (
	"regexp"
	"strings"
)

// Command is a parsed assignment command. It is a closed set: the
// orchestrator switches exhaustively over the concrete types below.
type Command interface {
	isCommand()
}

// OwnCommand claims the issue for the commenter (`@bot claim`).
type OwnCommand struct{}

// UserCommand assigns a specific user (`@bot assign @user`).
type UserCommand struct {
	Username string
}

// ReleaseCommand removes the commenter's assignment (`@bot release-assignment`).
type ReleaseCommand struct{}

// ReviewNameCommand requests a reviewer by user, team, or group name (`r? name`).
type ReviewNameCommand struct {
	Name string
}

func (OwnCommand) isCommand()        {}
func (UserCommand) isCommand()       {}
func (ReleaseCommand) isCommand()    {}
func (ReviewNameCommand) isCommand() {}

var reviewRequestRe = regexp.MustCompile(`(?:^|\s)r\?[:\s]+@?([a-zA-Z0-9_./-]+)`)

// FindReviewRequest finds an `r? name` request in a PR body or comment.
// Returns the requested name and whether one was found.
func FindReviewRequest(body string) (string, bool) {
	m := reviewRequestRe.FindStringSubmatch(body)
	if m == nil {
		return "", false
	}
	return strings.TrimSuffix(m[1], "."), true
}

// ParseComment extracts an assignment command addressed to the bot from a
// comment body. `r?` requests do not need the bot mention. Returns nil when
// the comment carries no command.
func ParseComment(botLogin, body string) Command {
	mention := "@" + botLogin
	for _, line := range strings.Split(body, "\n") {
		line = strings.TrimSpace(line)
		if rest, ok := strings.CutPrefix(line, mention); ok {
			fields := strings.Fields(rest)
			if len(fields) == 0 {
				continue
			}
			switch fields[0] {
			case "claim":
				return OwnCommand{}
			case "release-assignment":
				return ReleaseCommand{}
			case "assign":
				if len(fields) > 1 {
					return UserCommand{Username: strings.TrimPrefix(fields[1], "@")}
				}
			default:
			}
		}
		if name, ok := FindReviewRequest(line); ok {
			return ReviewNameCommand{Name: name}
		}
	}
	return nil
}
