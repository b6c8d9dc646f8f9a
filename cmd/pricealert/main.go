package main

import "price-alert-bot/internal/cli"

func main() {
	cli.Execute()
}
