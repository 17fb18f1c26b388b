package main

import "github.com/notargets/gomg/cmd"

func main() {
	cmd.Execute()
}
