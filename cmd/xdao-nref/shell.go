package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/kballard/go-shellquote"
)

func cmdShell(a *app, in io.Reader, out io.Writer, errOut io.Writer) int {
	fmt.Fprintln(out, "Type commands. 'help' for information or 'exit' to quit.")
	reader := bufio.NewReader(in)
	for {
		fmt.Fprint(out, "> ")

		line, err := reader.ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			fmt.Fprintln(errOut, "input error:", err)
			return 1
		}
		eof := err != nil

		line = strings.TrimSpace(line)
		switch line {
		case "":
			if eof {
				fmt.Fprintln(out)
				return 0
			}
			continue
		case "exit", "quit":
			return 0
		case "help":
			printUsage(out)
			continue
		}

		args, perr := shellquote.Split(line)
		if perr != nil {
			fmt.Fprintln(errOut, "parse error:", perr)
		} else if len(args) > 0 {
			dispatch(a, args, out, errOut)
		}
		if eof {
			return 0
		}
	}
}
