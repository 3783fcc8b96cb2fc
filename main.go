package main

import "github.com/kozaktomas/classmark/cmd"

func main() {
	cmd.Execute()
}
