package main

import "github.com/ponyo877/huddle/cli/cmd"

func main() {
	cmd.Execute()
}
