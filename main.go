package main

import (
	"github.com/beyondstorage/beyond-relay/cmd"
)

func main() {
	cmd.Execute()
}
