// SPDX-License-Identifier: MPL-2.0

// updraft keeps locally installed plugin artifacts synchronized with
// their GitHub release sources.
package main

import "updraft/cmd/updraft"

func main() {
	cmd.Execute()
}
