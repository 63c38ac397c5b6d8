package main

import (
	"citybrief/cmd/cmd"
	"citybrief/internal/logger"
)

func main() {
	logger.Init() // Initialize the logger
	cmd.Execute()
}
