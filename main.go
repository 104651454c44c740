package main

import "github.com/pgshift/pgshift/cmd"

func main() {
	cmd.Execute()
}
