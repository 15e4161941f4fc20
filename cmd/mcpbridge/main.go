package main

import "github.com/mcpbridge/mcpbridge/cmd/mcpbridge/cmd"

func main() {
	cmd.Execute()
}
