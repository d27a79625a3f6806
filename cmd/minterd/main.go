package main

import (
	"github.com/HumansWindow/lastproject-sub008/internal/cli"
)

func main() {
	cli.Execute()
}
