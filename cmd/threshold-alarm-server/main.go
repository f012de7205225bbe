package main

import "github.com/oshokin/threshold-alarm/cmd/threshold-alarm-server/cmd"

func main() {
	cmd.Execute()
}
