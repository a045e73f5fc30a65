package main

import (
	"os"

	"github.com/quizward/quizward/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
