package transform

import (
	"encoding/json"
	"strings"
)

// adfNode is a node of an Atlassian Document Format tree, the rich text
// representation REST API v3 uses for descriptions and comment bodies.
type adfNode struct {
	Type    string          `json:"type"`
	Text    string          `json:"text"`
	Attrs   json.RawMessage `json:"attrs"`
	Content []adfNode       `json:"content"`
}

// adfBlocks end with a line break so paragraphs do not run together.
var adfBlocks = map[string]bool{
	"paragraph":   true,
	"heading":     true,
	"blockquote":  true,
	"listItem":    true,
	"tableRow":    true,
	"panel":       true,
	"rule":        true,
	"mediaSingle": true,
}

// flattenADF extracts the text of an ADF document. Code blocks are kept in
// wiki form so CleanText replaces them like any other code span.
func flattenADF(raw json.RawMessage) string {
	var doc adfNode
	if err := json.Unmarshal(raw, &doc); err != nil {
		return ""
	}
	var b strings.Builder
	writeADF(&b, doc)
	return b.String()
}

func writeADF(b *strings.Builder, n adfNode) {
	switch n.Type {
	case "text":
		b.WriteString(n.Text)
		return
	case "hardBreak":
		b.WriteString("\n")
		return
	case "codeBlock":
		b.WriteString("{code}")
		for _, c := range n.Content {
			writeADF(b, c)
		}
		b.WriteString("{code}\n")
		return
	case "mention", "emoji", "status", "date":
		var attrs struct {
			Text      string `json:"text"`
			ShortName string `json:"shortName"`
			Timestamp string `json:"timestamp"`
		}
		if json.Unmarshal(n.Attrs, &attrs) == nil {
			switch {
			case attrs.Text != "":
				b.WriteString(attrs.Text)
			case attrs.ShortName != "":
				b.WriteString(attrs.ShortName)
			default:
				b.WriteString(attrs.Timestamp)
			}
		}
		return
	case "inlineCard", "blockCard":
		b.WriteString(" " + LinkPlaceholder + " ")
		return
	}

	for _, c := range n.Content {
		writeADF(b, c)
	}
	if adfBlocks[n.Type] {
		b.WriteString("\n")
	}
}
