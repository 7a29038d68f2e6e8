package main

import "github.com/ppiankov/agentlens/internal/cli"

func main() {
	cli.Execute()
}
