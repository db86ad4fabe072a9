package main

import "github.com/park285/cheese-analyzer/internal/cli"

func main() {
	cli.Execute()
}
