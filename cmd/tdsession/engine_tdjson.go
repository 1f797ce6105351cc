//go:build tdjson

package main

import (
	"github.com/ggoodman/tdsession-go/config"
	"github.com/ggoodman/tdsession-go/engine"
	"github.com/ggoodman/tdsession-go/engine/tdjson"
)

func newEngine(cfg config.Config) (engine.Engine, error) {
	return tdjson.New(tdjson.WithVerbosity(cfg.EngineVerbosity)), nil
}
