package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sort"
	"strings"
)

type packageInfo struct {
	ImportPath string
	Imports    []string
}

// rule forbids packages under From from importing anything under any of
// Forbidden.
type rule struct {
	From      string
	Forbidden []string
}

// The replication core stays free of transport and session concerns so it
// can be driven by loopback tests and the websocket hub alike.
var rules = []rule{
	{From: "netsync/internal/replication", Forbidden: []string{"netsync/internal/transport", "netsync/internal/session", "netsync/internal/net", "netsync/internal/app"}},
	{From: "netsync/internal/motion", Forbidden: []string{"netsync/internal/transport", "netsync/internal/session", "netsync/internal/net", "netsync/internal/app"}},
	{From: "netsync/internal/palette", Forbidden: []string{"netsync/internal/transport", "netsync/internal/session", "netsync/internal/net", "netsync/internal/app"}},
	{From: "netsync/internal/journal", Forbidden: []string{"netsync/internal/session", "netsync/internal/storage", "netsync/internal/app"}},
	{From: "netsync/internal/storage", Forbidden: []string{"netsync/internal/session", "netsync/internal/transport", "netsync/internal/app"}},
	{From: "netsync/internal/net", Forbidden: []string{"netsync/internal/player", "netsync/internal/app"}},
}

func main() {
	cmd := exec.Command("go", "list", "-json", "./internal/...")
	cmd.Env = os.Environ()
	output, err := cmd.Output()
	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			os.Stderr.Write(exitErr.Stderr)
		}
		fmt.Fprintf(os.Stderr, "depscheck: failed to list packages: %v\n", err)
		os.Exit(1)
	}

	pkgs, err := decodePackages(bytes.NewReader(output))
	if err != nil {
		fmt.Fprintf(os.Stderr, "depscheck: failed to decode package info: %v\n", err)
		os.Exit(1)
	}

	if violations := check(pkgs, rules); len(violations) > 0 {
		fmt.Fprintln(os.Stderr, "depscheck: found forbidden imports:")
		for _, violation := range violations {
			fmt.Fprintf(os.Stderr, "  %s\n", violation)
		}
		os.Exit(1)
	}
}

func decodePackages(r io.Reader) ([]packageInfo, error) {
	decoder := json.NewDecoder(r)
	var pkgs []packageInfo
	for {
		var pkg packageInfo
		if err := decoder.Decode(&pkg); err != nil {
			if errors.Is(err, io.EOF) {
				return pkgs, nil
			}
			return nil, err
		}
		pkgs = append(pkgs, pkg)
	}
}

func check(pkgs []packageInfo, rules []rule) []string {
	var violations []string
	for _, pkg := range pkgs {
		for _, r := range rules {
			if !within(pkg.ImportPath, r.From) {
				continue
			}
			for _, imp := range pkg.Imports {
				for _, forbidden := range r.Forbidden {
					if within(imp, forbidden) {
						violations = append(violations, fmt.Sprintf("%s -> %s", pkg.ImportPath, imp))
					}
				}
			}
		}
	}
	sort.Strings(violations)
	return violations
}

func within(path, prefix string) bool {
	return path == prefix || strings.HasPrefix(path, prefix+"/")
}
