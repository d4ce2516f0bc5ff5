// Testmemo reports which Bazel test targets need to run again.
package main

import "github.com/albertocavalcante/testmemo/cmd/testmemo/internal/cli"

func main() {
	cli.Execute()
}
