package handlers

import (
	"time"

	"media-library/internal/pipeline"
	"media-library/internal/startup"
)

type Handlers struct {
	pipe      *pipeline.Pipeline
	mediaDir  string
	startedAt time.Time
}

func New(pipe *pipeline.Pipeline, config *startup.Config) *Handlers {
	return &Handlers{
		pipe:      pipe,
		mediaDir:  config.MediaDir,
		startedAt: time.Now(),
	}
}
