package logger

import (
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// cronLogger adapts zerolog to the cron.Logger interface
type cronLogger struct {
	log zerolog.Logger
}

// Cron returns a cron.Logger that writes through l. cron's informational
// chatter (schedule, wake, run) goes to debug level.
func Cron(l zerolog.Logger) cron.Logger {
	return &cronLogger{log: l.With().Str("component", "cron").Logger()}
}

func (c *cronLogger) Info(msg string, keysAndValues ...interface{}) {
	c.log.Debug().Fields(normalize(keysAndValues)).Msg(msg)
}

func (c *cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	c.log.Error().Err(err).Fields(normalize(keysAndValues)).Msg(msg)
}

// normalize drops a trailing key without a value so zerolog does not
// receive an odd-length field list
func normalize(kv []interface{}) []interface{} {
	if len(kv)%2 == 1 {
		return kv[:len(kv)-1]
	}
	return kv
}
