package terminal

import (
	"testing"

	"github.com/ggoodman/tdsession-go/input"
	"github.com/stretchr/testify/assert"
)

func TestTitle(t *testing.T) {
	p := New(WithLabel("alice"))

	assert.Equal(t, "[alice] Password (my pet)", p.title(input.Request{Kind: input.KindPassword, Hint: "my pet"}))
	assert.Equal(t, "[alice] Enter it", p.title(input.Request{Kind: input.KindCode, Prompt: "Enter it"}))
	assert.Equal(t, "Authorization code", New().title(input.Request{Kind: input.KindCode}))
}

func TestNonEmpty(t *testing.T) {
	assert.Error(t, nonEmpty("   "))
	assert.NoError(t, nonEmpty("42"))
}
