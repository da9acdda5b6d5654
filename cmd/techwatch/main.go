package main

import (
	"os"

	"horse.fit/techwatch/internal/app"
)

func main() {
	os.Exit(app.Run(os.Args[1:]))
}
