package main

import (
	"os"

	"github.com/ks-enterprise/ks-admin/cmd/ksadminctl/cli"
)

func main() {
	if err := cli.NewRootCommand(cli.DefaultDeps()).Execute(); err != nil {
		os.Exit(1)
	}
}
