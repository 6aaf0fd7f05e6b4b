package events

import (
	"github.com/ThreeDotsLabs/watermill"
	"github.com/rs/zerolog"
)

// ZerologAdapter routes watermill's logging through zerolog.
type ZerologAdapter struct {
	logger zerolog.Logger
}

func NewZerologAdapter(logger zerolog.Logger) *ZerologAdapter {
	return &ZerologAdapter{logger: logger}
}

var _ watermill.LoggerAdapter = &ZerologAdapter{}

func (z *ZerologAdapter) Error(msg string, err error, fields watermill.LogFields) {
	z.logger.Error().Fields(map[string]interface{}(fields)).Err(err).Msg(msg)
}

// Info is mapped to debug, watermill is chatty at info level.
func (z *ZerologAdapter) Info(msg string, fields watermill.LogFields) {
	z.logger.Debug().Fields(map[string]interface{}(fields)).Msg(msg)
}

func (z *ZerologAdapter) Debug(msg string, fields watermill.LogFields) {
	z.logger.Debug().Fields(map[string]interface{}(fields)).Msg(msg)
}

func (z *ZerologAdapter) Trace(msg string, fields watermill.LogFields) {
	z.logger.Trace().Fields(map[string]interface{}(fields)).Msg(msg)
}

func (z *ZerologAdapter) With(fields watermill.LogFields) watermill.LoggerAdapter {
	return &ZerologAdapter{logger: z.logger.With().Fields(map[string]interface{}(fields)).Logger()}
}
