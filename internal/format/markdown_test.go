package format

import (
	"testing"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/assert"
)

func TestUTF16Len(t *testing.T) {
	assert.Equal(t, 5, UTF16Len("hello"))
	assert.Equal(t, 2, UTF16Len("春节"))
	assert.Equal(t, 2, UTF16Len("😀"))
}

func TestParseMarkdown(t *testing.T) {
	tests := []struct {
		name     string
		in       string
		text     string
		entities []tgbotapi.MessageEntity
	}{
		{
			name: "plain",
			in:   "no markup",
			text: "no markup",
		},
		{
			name:     "bold",
			in:       "a **b** c",
			text:     "a b c",
			entities: []tgbotapi.MessageEntity{{Type: "bold", Offset: 2, Length: 1}},
		},
		{
			name:     "header",
			in:       "# Today\nnothing",
			text:     "Today\nnothing",
			entities: []tgbotapi.MessageEntity{{Type: "bold", Offset: 0, Length: 5}},
		},
		{
			name: "mixed",
			in:   "*x* **bold** `code`",
			text: "x bold code",
			entities: []tgbotapi.MessageEntity{
				{Type: "italic", Offset: 0, Length: 1},
				{Type: "bold", Offset: 2, Length: 4},
				{Type: "code", Offset: 7, Length: 4},
			},
		},
		{
			name:     "wide characters before entity",
			in:       "😀 **春节**",
			text:     "😀 春节",
			entities: []tgbotapi.MessageEntity{{Type: "bold", Offset: 3, Length: 2}},
		},
		{
			name:     "trailing whitespace trimmed",
			in:       "__done__ \n",
			text:     "done",
			entities: []tgbotapi.MessageEntity{{Type: "bold", Offset: 0, Length: 4}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ParseMarkdown(tt.in)
			assert.Equal(t, tt.text, got.Text)
			assert.Equal(t, tt.entities, got.Entities)
		})
	}
}
