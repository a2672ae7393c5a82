package main

import "github.com/citamon/citamon/cmd"

func main() {
	cmd.Execute()
}
