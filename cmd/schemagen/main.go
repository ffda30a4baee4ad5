package main

import (
	"flag"
	"fmt"
	"os"

	"lockstep.ai/internal/sim/designator"
)

func main() {
	out := flag.String("out", "", "write the schema here instead of stdout")
	flag.Parse()

	b, err := designator.PayloadSchemaJSON()
	if err != nil {
		fmt.Fprintln(os.Stderr, "schema:", err)
		os.Exit(1)
	}
	b = append(b, '\n')
	if *out == "" {
		_, _ = os.Stdout.Write(b)
		return
	}
	if err := os.WriteFile(*out, b, 0o644); err != nil {
		fmt.Fprintln(os.Stderr, "write:", err)
		os.Exit(1)
	}
}
