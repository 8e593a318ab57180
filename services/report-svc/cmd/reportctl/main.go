package main

import "workshop/services/report-svc/internal/cli"

func main() {
	cli.Execute()
}
