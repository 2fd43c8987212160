package main

import "github.com/ciciliostudio/loginpilot/cmd"

func main() {
	cmd.Execute()
}
