// Package format turns the small Markdown subset used in bot messages into
// plain text plus Telegram message entities.
package format

import (
	"regexp"
	"sort"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// ParseResult contains plain text and message entities
type ParseResult struct {
	Text     string
	Entities []tgbotapi.MessageEntity
}

var (
	headerRe = regexp.MustCompile(`(?m)^#{1,6}\s+(.+?)$`)
	boldRe   = regexp.MustCompile(`\*\*(.+?)\*\*|__(.+?)__`)
	codeRe   = regexp.MustCompile("`([^`]+?)`")
	italicRe = map[string]*regexp.Regexp{
		"*": regexp.MustCompile(`\*([^*\n]+?)\*`),
		"_": regexp.MustCompile(`_([^_\n]+?)_`),
	}
)

// UTF16Len calculates the UTF-16 length of a string.
// Telegram counts entity offsets and lengths in UTF-16 code units.
func UTF16Len(s string) int {
	length := 0
	for _, b := range []byte(s) {
		if (b & 0xc0) != 0x80 {
			if b >= 0xf0 {
				length += 2
			} else {
				length++
			}
		}
	}
	return length
}

// ParseMarkdown supports **bold**, __bold__, *italic*, _italic_, `code`
// and # headers (rendered bold).
func ParseMarkdown(text string) ParseResult {
	p := &parser{text: headerRe.ReplaceAllString(text, "**$1**")}

	p.strip(boldRe, "bold")
	p.strip(codeRe, "code")
	p.strip(italicRe["*"], "italic")
	p.strip(italicRe["_"], "italic")

	// Telegram requires entities ordered by offset.
	sort.SliceStable(p.entities, func(i, j int) bool {
		return p.entities[i].Offset < p.entities[j].Offset
	})

	return ParseResult{
		Text:     strings.TrimRight(p.text, " \n"),
		Entities: p.entities,
	}
}

type parser struct {
	text     string
	entities []tgbotapi.MessageEntity
}

// strip removes the markers of every match of re, left to right, and
// records an entity over the inner text. Entities recorded earlier that sit
// after a match are shifted left by the removed marker width.
func (p *parser) strip(re *regexp.Regexp, kind string) {
	searchStart := 0
	for searchStart < len(p.text) {
		loc := re.FindStringSubmatchIndex(p.text[searchStart:])
		if loc == nil {
			return
		}
		for i := range loc {
			if loc[i] != -1 {
				loc[i] += searchStart
			}
		}

		innerStart, innerEnd := loc[2], loc[3]
		if innerStart == -1 && len(loc) > 5 {
			innerStart, innerEnd = loc[4], loc[5]
		}
		fullStart, fullEnd := loc[0], loc[1]
		inner := p.text[innerStart:innerEnd]

		offset := UTF16Len(p.text[:fullStart])
		openWidth := UTF16Len(p.text[fullStart:innerStart])
		closeWidth := UTF16Len(p.text[innerEnd:fullEnd])
		innerLen := UTF16Len(inner)

		for i := range p.entities {
			e := &p.entities[i]
			switch {
			case e.Offset >= offset+openWidth+innerLen+closeWidth:
				e.Offset -= openWidth + closeWidth
			case e.Offset >= offset+openWidth:
				e.Offset -= openWidth
			}
		}

		p.entities = append(p.entities, tgbotapi.MessageEntity{
			Type:   kind,
			Offset: offset,
			Length: innerLen,
		})
		p.text = p.text[:fullStart] + inner + p.text[fullEnd:]
		searchStart = fullStart + len(inner)
	}
}
