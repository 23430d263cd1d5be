package main

import "github.com/pidginhq/pidgin/cmd"

func main() {
	cmd.Execute()
}
