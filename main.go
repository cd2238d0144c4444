package main

import "github.com/mselser95/signal-bot/cmd"

func main() {
	cmd.Execute()
}
