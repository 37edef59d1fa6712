package main

import (
	"fmt"
	"os"

	zrelaycmder "github.com/zrelay/zrelay/cmd/zrelay"
)

func main() {
	cmd := zrelaycmder.NewZrelayCmd()

	err := cmd.Execute()
	if err != nil {
		fmt.Printf("Error executing root command: %v\n", err)
		os.Exit(1)
	}
}
