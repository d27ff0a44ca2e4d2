// The main package for the listing-crawler executable.
package main

import (
	"github.com/JakeFAU/listing-crawler/cmd"
)

func main() {
	cmd.Execute()
}
