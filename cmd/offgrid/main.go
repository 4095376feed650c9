package main

import "github.com/rudransh-shrivastava/offgrid/internal/client/cmd"

func main() {
	cmd.Execute()
}
