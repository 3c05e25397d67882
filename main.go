// SPDX-License-Identifier: MPL-2.0

package main

import cmd "labkit/cmd/labkit"

func main() {
	cmd.Execute()
}
