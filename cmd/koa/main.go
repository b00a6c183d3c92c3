package main

import (
	"github.com/koa-cli/koa/pkg/cli"
)

func main() {
	cli.Execute()
}
