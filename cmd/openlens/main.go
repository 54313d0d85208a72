package main

import "github.com/amitngm/openlens-sub001/cmd"

func main() {
	cmd.Execute()
}
