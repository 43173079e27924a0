package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/angelmondragon/minierp-console/internal/console"
	pkgerrors "github.com/angelmondragon/minierp-console/pkg/errors"
)

// consoleFunc resolves the console once the root pre-run has opened it.
type consoleFunc func() *console.Console

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printDetail(cmd *cobra.Command, detail string) error {
	return printJSON(cmd, map[string]string{"detail": detail})
}

func parseID(raw, name string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil || id <= 0 {
		return 0, pkgerrors.Newf(pkgerrors.CodeValidation, "%s must be a positive integer", name)
	}
	return id, nil
}

// readSecret takes the first line of in, so a password can be piped rather
// than passed on the command line.
func readSecret(cmd *cobra.Command, in io.Reader, prompt string) (string, error) {
	fmt.Fprint(cmd.ErrOrStderr(), prompt)
	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && err != io.EOF {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}

// numberFlag lets a json.Number form field be set from a flag; validation
// stays with the form.
type numberFlag struct {
	n *json.Number
}

func (f numberFlag) String() string {
	if f.n == nil {
		return ""
	}
	return string(*f.n)
}

func (f numberFlag) Set(v string) error {
	*f.n = json.Number(strings.TrimSpace(v))
	return nil
}

func (numberFlag) Type() string {
	return "number"
}
