package main

import "github.com/FewZ2372/polymarket-bot/cmd"

func main() {
	cmd.Execute()
}
