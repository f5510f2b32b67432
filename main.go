package main

import (
	"log"

	"github.com/thiagokokada/histget/cmd"
)

func main() {
	if err := cmd.Run(); err != nil {
		log.Fatalf("histget: %v", err)
	}
}
