package main

import "kindred-backend/cmd"

func main() {
	cmd.Run()
}
