package main

import "shoprelay/cmd/cli"

func main() {
	cli.Execute()
}
