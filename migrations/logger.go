package migrations

import (
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
)

// Logger forwards goose output to the global zerolog logger.
type Logger struct{}

func (Logger) Printf(format string, v ...interface{}) {
	log.Info().Str("component", "goose").Msg(strings.TrimSpace(fmt.Sprintf(format, v...)))
}

func (Logger) Fatalf(format string, v ...interface{}) {
	log.Fatal().Str("component", "goose").Msg(strings.TrimSpace(fmt.Sprintf(format, v...)))
}
