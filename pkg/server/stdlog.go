// Copyright © 2025 Prabhjot Singh Sethi, All Rights reserved
// Author: Prabhjot Singh Sethi <prabhjot.sethi@gmail.com>

package server

import (
	stdlog "log"

	"github.com/rs/zerolog"
)

// stdLogger routes net/http's internal error log through zerolog.
func stdLogger(logger zerolog.Logger) *stdlog.Logger {
	return stdlog.New(logger.With().Str("source", "net/http").Logger(), "", 0)
}
