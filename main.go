package main

import "github.com/Penlika/tkb/cmd"

func main() {
	cmd.Execute()
}
