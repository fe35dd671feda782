package observability

import (
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// InitLogger tags the global logger with app. Output, level and
// timestamps stay as the logging package configured them.
func InitLogger(app string) zerolog.Logger {
	log.Logger = log.Logger.With().Str("app", app).Logger()
	return log.Logger
}
