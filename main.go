package main

import (
	"github.com/gofiber/fiber/v2/log"
	"github.com/sahilchouksey/exam-parser/app"
)

func main() {
	if err := app.SetupAndRunServer(); err != nil {
		log.Fatalf("exam-parser: %v", err)
	}
}
