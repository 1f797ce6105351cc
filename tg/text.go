package tg

import (
	"context"
	"fmt"

	"github.com/ggoodman/tdsession-go/td"
)

// ParseMode selects how Text markup is interpreted.
type ParseMode string

const (
	ParsePlain    ParseMode = ""
	ParseHTML     ParseMode = "textParseModeHTML"
	ParseMarkdown ParseMode = "textParseModeMarkdown"
)

// Text is message text with optional markup.
type Text struct {
	Text      string
	ParseMode ParseMode
}

// Plain returns unformatted text.
func Plain(s string) Text { return Text{Text: s} }

// HTML returns text using HTML markup.
func HTML(s string) Text { return Text{Text: s, ParseMode: ParseHTML} }

// Markdown returns text using Markdown markup.
func Markdown(s string) Text { return Text{Text: s, ParseMode: ParseMarkdown} }

// FormatText converts t into a formattedText object. Markup is parsed locally
// by the engine through Execute; plain text is wrapped as is. Unknown parse
// modes are treated as plain.
func (c *Client) FormatText(ctx context.Context, t Text) (td.Object, error) {
	switch t.ParseMode {
	case ParseHTML, ParseMarkdown:
	default:
		return td.Object{"@type": "formattedText", "text": t.Text}, nil
	}

	res, err := c.sess.Execute(ctx, td.Object{
		"@type":      "parseTextEntities",
		"text":       t.Text,
		"parse_mode": td.Object{"@type": string(t.ParseMode)},
	})
	if err != nil {
		return nil, fmt.Errorf("tg: format text: %w", err)
	}
	if res == nil {
		return nil, ErrNoFormattedText
	}
	return res, nil
}
