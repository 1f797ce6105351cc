package tg

import (
	"context"
	"fmt"

	"github.com/ggoodman/tdsession-go/td"
	"golang.org/x/sync/errgroup"
)

const (
	maxChatOrder     = "9223372036854775807"
	defaultChatLimit = 1000
	chatFetchWorkers = 8
)

// ChatRef names a chat by public username or by id. Username wins when both
// are set.
type ChatRef struct {
	Username string
	ID       int64
}

// UsernameError reports that a username check did not pass.
type UsernameError struct {
	Username string
	// Result is the check result type, such as checkChatUsernameResultUsernameOccupied.
	Result string
}

func (e *UsernameError) Error() string {
	return fmt.Sprintf("tg: username %q rejected: %s", e.Username, e.Result)
}

// GetAllChats returns the full chat objects of up to limit chats from the
// main list, in list order. A non-positive limit uses a large default.
func (c *Client) GetAllChats(ctx context.Context, limit int) ([]td.Object, error) {
	if limit <= 0 {
		limit = defaultChatLimit
	}
	res, err := c.sess.Query(ctx, td.Object{
		"@type":          "getChats",
		"offset_order":   maxChatOrder,
		"offset_chat_id": 0,
		"limit":          limit,
	})
	if err != nil {
		return nil, fmt.Errorf("tg: list chats: %w", err)
	}
	var list struct {
		ChatIDs []int64 `json:"chat_ids"`
	}
	if err := res.Decode(&list); err != nil {
		return nil, err
	}

	chats := make([]td.Object, len(list.ChatIDs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(chatFetchWorkers)
	for i, id := range list.ChatIDs {
		g.Go(func() error {
			chat, err := c.sess.Query(gctx, td.Object{"@type": "getChat", "chat_id": id})
			if err != nil {
				return fmt.Errorf("tg: get chat %d: %w", id, err)
			}
			chats[i] = chat
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return chats, nil
}

// GetChat resolves a chat by username or id.
func (c *Client) GetChat(ctx context.Context, ref ChatRef) (td.Object, error) {
	switch {
	case ref.Username != "":
		return c.sess.Query(ctx, td.Object{"@type": "searchPublicChat", "username": ref.Username})
	case ref.ID != 0:
		return c.sess.Query(ctx, td.Object{"@type": "getChat", "chat_id": ref.ID})
	}
	return nil, ErrNoChatRef
}

// UpdateUsername checks and sets the username of the current user, or of
// the supergroup supergroupID when it is non-zero. A failed check returns a
// *UsernameError.
func (c *Client) UpdateUsername(ctx context.Context, username string, supergroupID int64) (td.Object, error) {
	var owner td.Object
	var err error
	if supergroupID != 0 {
		owner, err = c.sess.Query(ctx, td.Object{"@type": "createSupergroupChat", "supergroup_id": supergroupID})
	} else {
		owner, err = c.sess.Query(ctx, td.Object{"@type": "getMe"})
	}
	if err != nil {
		return nil, err
	}

	check, err := c.sess.Query(ctx, td.Object{
		"@type":    "checkChatUsername",
		"chat_id":  owner.Int64("id"),
		"username": username,
	})
	if err != nil {
		return nil, err
	}
	if check.Type() != "checkChatUsernameResultOk" {
		return nil, &UsernameError{Username: username, Result: check.Type()}
	}

	if supergroupID != 0 {
		return c.sess.Query(ctx, td.Object{
			"@type":         "setSupergroupUsername",
			"supergroup_id": supergroupID,
			"username":      username,
		})
	}
	return c.sess.Query(ctx, td.Object{"@type": "setUsername", "username": username})
}

// OpenSecretChat returns the existing secret chat with userID, creating one
// when none exists.
func (c *Client) OpenSecretChat(ctx context.Context, userID int64) (td.Object, error) {
	chats, err := c.GetAllChats(ctx, 0)
	if err != nil {
		return nil, err
	}
	for _, chat := range chats {
		typ := chat.Object("type")
		if typ.Type() == "chatTypeSecret" && typ.Int64("user_id") == userID {
			return chat, nil
		}
	}
	return c.sess.Query(ctx, td.Object{"@type": "createNewSecretChat", "user_id": userID})
}

// DeleteChat leaves or closes chatID, depending on its kind, then removes
// its history from the chat list.
func (c *Client) DeleteChat(ctx context.Context, chatID int64) error {
	chat, err := c.sess.Query(ctx, td.Object{"@type": "getChat", "chat_id": chatID})
	if err != nil {
		return err
	}
	typ := chat.Object("type")

	var leave td.Object
	switch typ.Type() {
	case "chatTypeBasicGroup", "chatTypeSupergroup":
		me, err := c.sess.Query(ctx, td.Object{"@type": "getMe"})
		if err != nil {
			return err
		}
		leave = td.Object{
			"@type":   "setChatMemberStatus",
			"chat_id": chatID,
			"user_id": me.Int64("id"),
			"status":  td.Object{"@type": "chatMemberStatusLeft"},
		}
	case "chatTypeSecret":
		leave = td.Object{"@type": "closeSecretChat", "secret_chat_id": typ.Int64("secret_chat_id")}
	default:
		leave = td.Object{"@type": "closeChat", "chat_id": chatID}
	}
	if _, err := c.sess.Query(ctx, leave); err != nil {
		return fmt.Errorf("tg: leave chat %d: %w", chatID, err)
	}

	_, err = c.sess.Query(ctx, td.Object{
		"@type":                 "deleteChatHistory",
		"chat_id":               chatID,
		"remove_from_chat_list": true,
	})
	return err
}
