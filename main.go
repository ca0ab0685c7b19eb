// Command fightstats-crawler crawls ufcstats.com into CSV datasets.
package main

import (
	"os"

	"github.com/JakeFAU/fightstats-crawler/cmd"
)

func main() {
	os.Exit(cmd.Execute())
}
