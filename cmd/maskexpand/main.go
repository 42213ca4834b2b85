// Command maskexpand prints the lookup keys a prefix mask expands to and the
// character set accepted at each mask position.
//
// Masks come from the command line or, with none given, one per line on stdin.
package main

import (
	"bufio"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"callparser/mask"
)

func main() {
	keysOnly := flag.Bool("keys", false, "print only the expanded keys, one per line")
	flag.Parse()

	masks := flag.Args()
	if len(masks) == 0 {
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			if m := strings.TrimSpace(scanner.Text()); m != "" {
				masks = append(masks, m)
			}
		}
		if err := scanner.Err(); err != nil {
			fmt.Fprintf(os.Stderr, "input error: %v\n", err)
			os.Exit(1)
		}
	}

	failed := false
	for _, m := range masks {
		if err := describe(os.Stdout, m, *keysOnly); err != nil {
			fmt.Fprintf(os.Stderr, "%v\n", err)
			failed = true
		}
	}
	if failed {
		os.Exit(1)
	}
}

// describe writes the position sets and expanded keys of m to w.
func describe(w io.Writer, m string, keysOnly bool) error {
	m = strings.ToUpper(strings.TrimSpace(m))
	positions, err := mask.Positions(m)
	if err != nil {
		var syn *mask.SyntaxError
		if errors.As(err, &syn) {
			return fmt.Errorf("%s\n%s^ %s", syn.Mask, strings.Repeat(" ", syn.Pos), syn.Reason)
		}
		return err
	}
	keys, err := mask.Expand(m)
	if err != nil {
		return err
	}
	if keysOnly {
		for _, k := range keys {
			fmt.Fprintln(w, k)
		}
		return nil
	}
	fmt.Fprintf(w, "mask %s", m)
	if mask.IsPortable(m) {
		fmt.Fprint(w, " (portable)")
	}
	fmt.Fprintln(w)
	for i, p := range positions {
		marker := ""
		if i >= mask.MaxKeyLen {
			marker = " (not expanded)"
		}
		fmt.Fprintf(w, "  %d: %s%s\n", i+1, p, marker)
	}
	fmt.Fprintf(w, "  %d keys: %s\n", len(keys), strings.Join(keys, " "))
	return nil
}
