package main

import "github.com/nimburion/txscope/pkg/cli"

func main() {
	cli.Execute(cli.NewRootCommand(cli.Options{
		Name:        "txscope",
		Description: "Run SQL statements inside a single transaction scope",
	}))
}
