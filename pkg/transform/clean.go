package transform

import (
	"regexp"
	"strings"
)

// Placeholders substituted for markup that has no useful plain-text form.
const (
	CodeBlockPlaceholder = "[CODE BLOCK]"
	LinkPlaceholder      = "[LINK]"
)

var (
	lineBreaks   = strings.NewReplacer("\r\n", " ", "\r", " ", "\n", " ")
	codeBlockRe  = regexp.MustCompile(`(?s)\{code[^}]*\}.*?\{code\}|\{noformat\}.*?\{noformat\}`)
	emphasisRe   = regexp.MustCompile(`\*+(\s*\w+\s*)\*+`)
	linkRe       = regexp.MustCompile(`\[[^\]]*\|[^\]]*\]`)
	whitespaceRe = regexp.MustCompile(`\s+`)
)

// maxCleanPasses bounds the fixpoint loop in CleanText.
const maxCleanPasses = 8

// CleanText turns Jira wiki markup into approximately plain text.
//
// It is a lossy, best-effort filter and not a markup parser: line breaks
// become spaces, {code} and {noformat} spans become [CODE BLOCK], simple
// *emphasis* loses its asterisks, [text|url] links become [LINK], and
// whitespace is collapsed and trimmed. Anything it does not recognise passes
// through unchanged. Passes repeat until the text stops changing, so cleaning
// already-cleaned text is a no-op.
func CleanText(s string) string {
	for i := 0; i < maxCleanPasses; i++ {
		next := cleanPass(s)
		if next == s {
			break
		}
		s = next
	}
	return s
}

func cleanPass(s string) string {
	s = lineBreaks.Replace(s)
	s = codeBlockRe.ReplaceAllLiteralString(s, " "+CodeBlockPlaceholder+" ")
	s = emphasisRe.ReplaceAllString(s, "${1}")
	s = linkRe.ReplaceAllLiteralString(s, " "+LinkPlaceholder+" ")
	s = whitespaceRe.ReplaceAllLiteralString(s, " ")
	return strings.TrimSpace(s)
}
