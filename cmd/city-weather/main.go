package main

import "github.com/i474232898/city-weather/internal/cli"

func main() {
	cli.Execute()
}
