package main

import "github.com/audiolibrelab/jamscribe/cmd"

func main() {
	cmd.Execute()
}
