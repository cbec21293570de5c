package observability

import (
	"github.com/rs/zerolog"

	"github.com/danmuck/feedctl/internal/logs"
)

// InitLogger returns the process logger tagged with the app name.
func InitLogger(app string) zerolog.Logger {
	return logs.Logger().With().Str("app", app).Logger()
}
