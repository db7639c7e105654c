// Command rbb hosts a simulated JTAG chain behind a remote-bitbang socket and
// scans chains through one.
package main

import "github.com/OpenTraceLab/rbbsim/cmd/rbb/cmd"

func main() {
	cmd.Execute()
}
