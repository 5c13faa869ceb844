package main

import (
	"os"

	"github.com/dmitrijs2005/gophaccounts/internal/admin/cli"
)

func main() {
	os.Exit(cli.Execute(cli.PostgresOpener))
}
