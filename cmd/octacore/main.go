package main

import "github.com/sarchlab/octacore/cmd/octacore/cmd"

func main() {
	cmd.Execute()
}
