//go:build !tdjson

package main

import (
	"errors"

	"github.com/ggoodman/tdsession-go/config"
	"github.com/ggoodman/tdsession-go/engine"
)

var errNoEngine = errors.New("built without an engine binding; rebuild with -tags tdjson")

func newEngine(config.Config) (engine.Engine, error) {
	return nil, errNoEngine
}
