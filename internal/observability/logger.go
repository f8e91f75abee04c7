package observability

import (
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// ComponentLogger derives a child of the process logger tagged with the
// application and component names.
func ComponentLogger(app, component string) zerolog.Logger {
	return log.Logger.With().Str("app", app).Str("component", component).Logger()
}
