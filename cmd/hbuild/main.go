package main

import "hbuild/internal/cli"

func main() {
	cli.Execute()
}
