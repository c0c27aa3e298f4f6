// mausctl packs, unpacks, and inspects MAUS/MAUZ containers.
//
// mausctl is a command-line tool only; it has no graphical frontend.
package main

import "mauz/internal/cli"

const version = "v0.1"

func main() {
	cli.Execute(version)
}
