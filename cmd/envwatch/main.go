package main

import "envwatch/internal/cli"

func main() {
	cli.Execute()
}
