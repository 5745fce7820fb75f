package main

import (
	"fmt"

	"github.com/imgk/divert-net"
)

func main() {
	ver, err := divert.GetVersion()
	if err != nil {
		panic(err)
	}
	fmt.Println(ver)
}
