// Package render turns a conversation into a standalone HTML document.
package render

import (
	"bytes"
	"fmt"
	"html"
	"strings"

	"github.com/MegaGrindStone/chat-relay/internal/models"
	"github.com/yuin/goldmark"
	highlighting "github.com/yuin/goldmark-highlighting"
	"github.com/yuin/goldmark/extension"
	gmhtml "github.com/yuin/goldmark/renderer/html"
)

const highlightStyle = "github"

var markdown = goldmark.New(
	goldmark.WithExtensions(
		extension.GFM,
		highlighting.NewHighlighting(highlighting.WithStyle(highlightStyle)),
	),
	goldmark.WithRendererOptions(gmhtml.WithHardWraps()),
)

var roleTitles = map[models.Role]string{
	models.RoleUser:      "You",
	models.RoleAssistant: "Assistant",
	models.RoleSystem:    "System",
}

// Transcript renders messages in order, each as a heading naming its role followed by its content
// converted from Markdown. Raw HTML in message content is not passed through.
func Transcript(messages []models.Message) (string, error) {
	var buf bytes.Buffer
	buf.WriteString("<!DOCTYPE html>\n<html>\n<head>\n<meta charset=\"utf-8\">\n<title>Chat transcript</title>\n</head>\n<body>\n")

	for i, msg := range messages {
		title, ok := roleTitles[msg.Role]
		if !ok {
			title = string(msg.Role)
		}
		fmt.Fprintf(&buf, "<article class=\"message %s\">\n<h2>%s</h2>\n",
			html.EscapeString(string(msg.Role)), html.EscapeString(title))
		if err := markdown.Convert([]byte(msg.Content), &buf); err != nil {
			return "", fmt.Errorf("failed to render message %d: %w", i, err)
		}
		buf.WriteString("</article>\n")
	}

	buf.WriteString("</body>\n</html>\n")
	return buf.String(), nil
}

// PlainText renders messages the way they are shown in a terminal, one block per message.
func PlainText(messages []models.Message) string {
	var sb strings.Builder
	for i, msg := range messages {
		if i > 0 {
			sb.WriteString("\n")
		}
		title, ok := roleTitles[msg.Role]
		if !ok {
			title = string(msg.Role)
		}
		fmt.Fprintf(&sb, "%s:\n%s\n", title, msg.Content)
	}
	return sb.String()
}
