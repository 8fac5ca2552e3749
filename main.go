// Copyright © 2025 Prabhjot Singh Sethi, All Rights reserved
// Author: Prabhjot Singh Sethi <prabhjot.sethi@gmail.com>

package main

import (
	"context"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/go-core-stack/removebg-relay/cmd"
)

func main() {
	zerolog.TimeFieldFormat = time.RFC3339Nano

	if err := cmd.Execute(context.Background()); err != nil {
		log.Error().Err(err).Msg("relay exited")
		os.Exit(1)
	}
}
