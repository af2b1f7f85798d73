package main

import (
	"encoding/json"
	"fmt"
	"os"

	"golang.org/x/term"

	"github.com/dokzlo13/entkv/internal/entity"
)

// printJSON writes v to stdout, indented when stdout is a terminal and one
// value per line otherwise.
func printJSON(v any) {
	var (
		data []byte
		err  error
	)
	if term.IsTerminal(int(os.Stdout.Fd())) {
		data, err = json.MarshalIndent(v, "", "  ")
	} else {
		data, err = json.Marshal(v)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error marshaling JSON: %v\n", err)
		return
	}
	fmt.Println(string(data))
}

func printEntities(list []*entity.Entity) {
	out := make([]map[string]any, 0, len(list))
	for _, e := range list {
		out = append(out, e.Map())
	}
	printJSON(out)
}
