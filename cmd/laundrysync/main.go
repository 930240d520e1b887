// Command laundrysync runs the offline-first laundry sync server and its
// operator commands.
package main

import (
	"os"

	"github.com/ahmlhn/Saas-Laundry-sub002/internal/cli"
)

func main() {
	os.Exit(cli.Execute(os.Args[1:], os.Stdout, os.Stderr))
}
