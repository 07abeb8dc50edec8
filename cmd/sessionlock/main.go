package main

import "github.com/creastat/sessionlock/cmd"

func main() {
	cmd.Execute()
}
