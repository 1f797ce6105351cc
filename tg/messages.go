package tg

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/ggoodman/tdsession-go/td"
)

// MessageOptions are the delivery settings shared by the send helpers.
type MessageOptions struct {
	ReplyToMessageID    int64
	DisableNotification bool
	// Foreground marks the message as sent by an explicit user action.
	Foreground bool
	// WebPagePreview enables link previews for text messages.
	WebPagePreview bool
	// KeepDraft leaves the chat draft untouched for text messages.
	KeepDraft bool
}

// Photo describes a local photo to send.
type Photo struct {
	Path    string
	Caption *Text
	Width   int
	Height  int
	TTL     int
}

// Sticker describes a local WebP sticker to send.
type Sticker struct {
	Path   string
	Width  int
	Height int
}

func (c *Client) sendMessage(ctx context.Context, chatID int64, content td.Object, opts MessageOptions) (td.Object, error) {
	return c.sess.Query(ctx, td.Object{
		"@type":                 "sendMessage",
		"chat_id":               chatID,
		"reply_to_message_id":   opts.ReplyToMessageID,
		"disable_notification":  opts.DisableNotification,
		"from_background":       !opts.Foreground,
		"reply_markup":          nil,
		"input_message_content": content,
	})
}

// SendTextMessage sends text to chatID.
func (c *Client) SendTextMessage(ctx context.Context, chatID int64, text Text, opts MessageOptions) (td.Object, error) {
	if text.Text == "" {
		return nil, ErrEmptyText
	}
	formatted, err := c.FormatText(ctx, text)
	if err != nil {
		return nil, err
	}
	return c.sendMessage(ctx, chatID, td.Object{
		"@type":                    "inputMessageText",
		"text":                     formatted,
		"disable_web_page_preview": !opts.WebPagePreview,
		"clear_draft":              !opts.KeepDraft,
	}, opts)
}

// SendPhotoMessage sends a local photo to chatID.
func (c *Client) SendPhotoMessage(ctx context.Context, chatID int64, photo Photo, opts MessageOptions) (td.Object, error) {
	var caption td.Object
	if photo.Caption != nil {
		var err error
		if caption, err = c.FormatText(ctx, *photo.Caption); err != nil {
			return nil, err
		}
	}
	return c.sendMessage(ctx, chatID, td.Object{
		"@type":                  "inputMessagePhoto",
		"photo":                  inputFileLocal(photo.Path),
		"thumbnail":              nil,
		"added_sticker_file_ids": []int64{},
		"width":                  photo.Width,
		"height":                 photo.Height,
		"caption":                caption,
		"ttl":                    photo.TTL,
	}, opts)
}

// SendStickerMessage sends a local WebP sticker to chatID.
func (c *Client) SendStickerMessage(ctx context.Context, chatID int64, sticker Sticker, opts MessageOptions) (td.Object, error) {
	if !strings.EqualFold(filepath.Ext(sticker.Path), ".webp") {
		return nil, fmt.Errorf("%w: %q", ErrNotWebP, sticker.Path)
	}
	return c.sendMessage(ctx, chatID, td.Object{
		"@type":     "inputMessageSticker",
		"sticker":   inputFileLocal(sticker.Path),
		"thumbnail": nil,
		"width":     sticker.Width,
		"height":    sticker.Height,
	}, opts)
}

func inputFileLocal(path string) td.Object {
	return td.Object{"@type": "inputFileLocal", "path": path}
}
