package main

import (
	"articleforge/cmd/handlers"
	"articleforge/internal/logger"
)

func main() {
	logger.Init() // Initialize the logger
	handlers.Execute()
}
