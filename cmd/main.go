package main

import (
	"os"

	"github.com/rs/zerolog/log"

	"quizprep-service/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		log.Error().Err(err).Msg("quizprep exited")
		os.Exit(1)
	}
}
