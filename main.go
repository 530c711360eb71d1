package main

import "github.com/mkratky/rollcall/cmd"

func main() {
	cmd.Execute()
}
