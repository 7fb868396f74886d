package main

import "github.com/naka-gawa/github-facts/cmd"

func main() {
	cmd.Execute()
}
