package main

import "github.com/klajdicaushi/lajournal-deploy/cmd"

func main() {
	cmd.Execute()
}
