package main

import "github.com/eslsoft/dictsync/cmd"

func main() {
	cmd.Execute()
}
