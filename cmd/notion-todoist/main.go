// Command notion-todoist keeps Notion task databases and Todoist in sync.
package main

import (
	"os"

	"github.com/soimon/notion-todoist/internal/cli"
)

func main() {
	os.Exit(cli.Execute(os.Args[1:], os.Stdout, os.Stderr))
}
