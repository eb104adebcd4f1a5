package transform

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCleanText(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"empty", "", ""},
		{"plain", "nothing to do", "nothing to do"},
		{"line breaks", "a\r\nb\nc\rd", "a b c d"},
		{"code block", "before {code}x = 1{code} after", "before [CODE BLOCK] after"},
		{"code block with language", "{code:java}\nint x;\n{code}", "[CODE BLOCK]"},
		{"noformat", "log: {noformat}ERROR 1\nERROR 2{noformat}", "log: [CODE BLOCK]"},
		{"two code blocks", "{code}a{code} and {code}b{code}", "[CODE BLOCK] and [CODE BLOCK]"},
		{"emphasis", "this is *important* text", "this is important text"},
		{"strong emphasis", "**really** bold", "really bold"},
		{"link", "see [docs|http://example.com] now", "see [LINK] now"},
		{"plain brackets kept", "array[0] stays", "array[0] stays"},
		{"surrounding whitespace", "  \n padded \n ", "padded"},
		{"unclosed code", "{code}never closed", "{code}never closed"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CleanText(tt.in))
		})
	}
}

func TestCleanTextIdempotent(t *testing.T) {
	inputs := []string{
		"*bold* and [link|http://x] and {code}x{code}",
		"* **a** *",
		"{co*d*e}x{code}",
		"nested [a|[b|c]] links",
		"*[a|b]*",
		"{code}a{code}{code}",
		"multi\nline\n\n*text*  with   gaps",
		"*a*b*c*",
	}

	for _, in := range inputs {
		once := CleanText(in)
		assert.Equal(t, once, CleanText(once), "input %q", in)
	}
}
