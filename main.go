package main

import "boshdata/internal/cli"

func main() {
	cli.Execute()
}
