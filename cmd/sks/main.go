package main

import "github.com/jmcleod/sks/cmd/sks/cmd"

func main() {
	cmd.Execute()
}
