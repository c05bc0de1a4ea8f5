package main

import "github.com/Circle-Cat/edu-agent/cmd"

func main() {
	cmd.Execute()
}
