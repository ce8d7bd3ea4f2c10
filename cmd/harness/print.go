package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/martinjaros/nanotalk2/pkg/lib"
	"github.com/martinjaros/nanotalk2/pkg/lib/lifecycle"
)

func printOutcome(w io.Writer, outcome *lifecycle.Outcome, specs ...lib.PeerSpec) {
	headers := []string{"PEER", "ROLE", "STATE", "EXIT", "COMMAND"}
	rows := make([][]string, 0, len(specs))
	for i, res := range []lifecycle.PeerResult{outcome.A, outcome.B} {
		if i >= len(specs) {
			break
		}
		rows = append(rows, []string{res.Name, string(res.Role), stateOf(res), exitOf(res), commandOf(specs[i].Command)})
	}

	widths := make([]int, len(headers))
	for i, h := range headers {
		widths[i] = len(h)
	}
	for _, row := range rows {
		for i, cell := range row {
			widths[i] = maxInt(widths[i], len(cell))
		}
	}

	parts := make([]string, len(widths))
	for i, wd := range widths {
		parts[i] = strings.Repeat("-", wd)
	}
	sep := "+-" + strings.Join(parts, "-+-") + "-+\n"

	line := func(cells []string) string {
		padded := make([]string, len(cells))
		for i, c := range cells {
			padded[i] = pad(c, widths[i])
		}
		return "| " + strings.Join(padded, " | ") + " |\n"
	}

	fmt.Fprint(w, sep)
	fmt.Fprint(w, line(headers))
	fmt.Fprint(w, sep)
	for _, row := range rows {
		fmt.Fprint(w, line(row))
	}
	fmt.Fprint(w, sep)
}

func stateOf(res lifecycle.PeerResult) string {
	if !res.Launched {
		return "NotStarted"
	}
	return res.Status.State.String()
}

func exitOf(res lifecycle.PeerResult) string {
	if res.Status.ExitCode == nil {
		return "-"
	}
	return fmt.Sprint(*res.Status.ExitCode)
}

func commandOf(c lib.Command) string {
	all := append([]string{c.Command}, c.Args...)
	return strings.TrimSpace(strings.Join(all, " "))
}

func pad(s string, w int) string {
	if len(s) >= w {
		return s
	}
	return s + strings.Repeat(" ", w-len(s))
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
