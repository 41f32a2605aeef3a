package main

import (
	"github.com/TFMV/avs/cmd/avs"
)

func main() {
	// Execute initializes all commands and starts the CLI
	avs.Execute()
}
