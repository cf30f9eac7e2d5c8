package main

import (
	"os"

	"garden.school/lessonbank/internal/app"
)

func main() {
	os.Exit(app.Run(os.Args[1:]))
}
