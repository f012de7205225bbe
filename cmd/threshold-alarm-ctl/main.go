package main

import "github.com/oshokin/threshold-alarm/cmd/threshold-alarm-ctl/cmd"

func main() {
	cmd.Execute()
}
