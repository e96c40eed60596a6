package main

import "github.com/marshallshelly/pebble-bridge/cmd/pebble-bridge/commands"

func main() {
	commands.Execute()
}
