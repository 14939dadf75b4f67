package main

import "github.com/Builder-Lawyers/hub-provisioner/cmd"

func main() {
	cmd.Execute()
}
