// interceptd - intercepting HTTP and WebSocket proxy for local development
package main

import "github.com/getmockd/interceptd/pkg/cli"

func main() {
	cli.Execute()
}
