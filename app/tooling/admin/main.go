// This program performs administrative tasks for the chain node.
package main

import "github.com/crescentlabs/crescent/app/tooling/admin/cmd"

func main() {
	cmd.Execute()
}
