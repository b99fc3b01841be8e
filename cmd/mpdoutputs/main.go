package main

import "github.com/famish99/mpdoutputs/cmd/mpdoutputs/cmd"

func main() {
	cmd.Execute()
}
