package main

import "github.com/2lambda123/facebook-prophet/cmd"

func main() {
	cmd.Execute()
}
