// Command crm runs the Neural CRM lead service and its operator tooling.
package main

import "os"

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
