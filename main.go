package main

import (
	"github/finchase/go-signing/cmd"
)

func main() {
	cmd.Execute()
}
