package main

import "github.com/hupe1980/vecmigrate/internal/cli"

func main() {
	cli.Execute()
}
