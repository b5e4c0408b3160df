package main

import (
	"github.com/oasisprotocol/custody/cmd"
)

func main() {
	cmd.Execute()
}
