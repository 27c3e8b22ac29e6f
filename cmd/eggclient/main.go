package main

import (
	"github.com/andrewwphillips/eggclient/internal/cli"
)

func main() {
	cli.Execute()
}
