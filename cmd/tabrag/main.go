package main

import "tabrag/internal/cli"

func main() {
	cli.Execute()
}
