// Package sanitize turns HTML and free-form text into plain text for storage and prompts.
package sanitize

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// replyHeaderRegex matches the "On Mon, Jan 5, 2026 ... wrote:" line that
// precedes a quoted reply chain in plain-text emails.
var replyHeaderRegex = regexp.MustCompile(`\s*On\s+\w{3},\s+\w{3}\s+\d`)

// TruncationMarker is appended to text shortened by Truncate.
const TruncationMarker = "..."

// StripHTML removes all markup, script and style blocks, and decodes entities.
// Whitespace is collapsed to single spaces.
func StripHTML(s string) string {
	return collapse(extractText(s, false))
}

// EmailText extracts the new part of an HTML email body: markup, script and
// style blocks are dropped and everything from the first quoted reply
// (a gmail_quote container, a blockquote, or an "On <day>, <mon> <d>" header) on is cut.
func EmailText(s string) string {
	text := extractText(s, true)
	if loc := replyHeaderRegex.FindStringIndex(text); loc != nil {
		text = text[:loc[0]]
	}
	return collapse(text)
}

// Truncate shortens s to at most max runes, appending TruncationMarker when cut.
func Truncate(s string, max int) string {
	if max <= 0 || utf8.RuneCountInString(s) <= max {
		return s
	}
	runes := []rune(s)
	return string(runes[:max]) + TruncationMarker
}

// Text sanitizes a string for safe text storage by stripping HTML.
func Text(s string) string {
	return StripHTML(s)
}

func extractText(s string, stopAtQuote bool) string {
	if !strings.ContainsAny(s, "<&") {
		return s
	}

	var b strings.Builder
	tokenizer := html.NewTokenizer(strings.NewReader(s))
	skipDepth := 0

	for {
		tt := tokenizer.Next()
		switch tt {
		case html.ErrorToken:
			// io.EOF or a malformed tail; keep what was read so far
			return b.String()
		case html.StartTagToken, html.SelfClosingTagToken:
			tok := tokenizer.Token()
			if stopAtQuote && isQuoteStart(tok) {
				return b.String()
			}
			if tt == html.StartTagToken && (tok.DataAtom == atom.Script || tok.DataAtom == atom.Style) {
				skipDepth++
			}
			b.WriteByte(' ')
		case html.EndTagToken:
			tok := tokenizer.Token()
			if (tok.DataAtom == atom.Script || tok.DataAtom == atom.Style) && skipDepth > 0 {
				skipDepth--
			}
			b.WriteByte(' ')
		case html.TextToken:
			if skipDepth > 0 {
				continue
			}
			b.Write(tokenizer.Text())
		}
	}
}

func isQuoteStart(tok html.Token) bool {
	if tok.DataAtom == atom.Blockquote {
		return true
	}
	if tok.DataAtom != atom.Div {
		return false
	}
	for _, attr := range tok.Attr {
		if attr.Key == "class" && strings.HasPrefix(attr.Val, "gmail_quote") {
			return true
		}
	}
	return false
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
