package conversation

import "strings"

// BuildPrompt renders the model prompt: the preamble, the prior turns as
// "User: ..." / "Assistant: ..." lines (oldest first), then the new user
// text and an open assistant line.
func BuildPrompt(preamble string, prior []Turn, user string) string {
	var b strings.Builder

	if p := strings.TrimSpace(preamble); p != "" {
		b.WriteString(p)
		b.WriteString("\n\n")
	}

	for _, t := range prior {
		b.WriteString(t.Role.Label())
		b.WriteString(": ")
		b.WriteString(t.Text)
		b.WriteByte('\n')
	}

	b.WriteString("User: ")
	b.WriteString(user)
	b.WriteString("\nAssistant:")
	return b.String()
}
