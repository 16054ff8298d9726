package main

import "github.com/xkilldash9x/navigator-cli/cmd"

func main() {
	cmd.Execute()
}
