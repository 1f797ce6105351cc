// Package tg offers task-level helpers on top of a client.Session: sending
// text, photo and sticker messages, listing and resolving chats, managing
// usernames and secret chats, downloading files and placing calls.
//
// Every helper is a thin composition of Session.Query calls. None of them may
// be used from a callback running on the session's receive loop.
package tg
