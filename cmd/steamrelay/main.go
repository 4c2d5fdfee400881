package main

import "github.com/jmcleod/steamrelay/cmd/steamrelay/cmd"

func main() {
	cmd.Execute()
}
