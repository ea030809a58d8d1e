package main

import "babybot/cmd"

func main() {
	cmd.Execute()
}
