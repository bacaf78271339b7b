package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/codefionn/langsock/internal/analysis"
	"github.com/codefionn/langsock/internal/consts"
	"github.com/codefionn/langsock/internal/protocol"
	"github.com/codefionn/langsock/internal/socketclient"
)

// errFailed marks a request the server answered with an error; the message
// has already been printed.
var errFailed = errors.New("request failed")

type clientFlags struct {
	original string
	nettle   string
	inner    string
	typeName string
	level    int
	timeout  time.Duration
	raw      bool
	verbose  bool
}

func newRootCommand(ctx context.Context, stdout, stderr io.Writer) *cobra.Command {
	flags := &clientFlags{}

	cmd := &cobra.Command{
		Use:   "langsock-client [flags] <socket-path> <cmd> <file>",
		Short: "Send one command to a running langsock server",
		Long: `langsock-client reads <file>, sends it to the server listening on
<socket-path> as the text of <cmd> and prints the response.

Commands: print, tree, stub, check, weave, usages, typecheck, objectInfo,
typedefGen.`,
		Args:          cobra.ExactArgs(3),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return send(ctx, flags, args, stdout, stderr)
		},
	}

	f := cmd.Flags()
	f.StringVar(&flags.original, "original", "", "Original source file (check)")
	f.StringVar(&flags.nettle, "nettle", "", "Annotated source file to copy types from (weave)")
	f.StringVar(&flags.inner, "inner", "", "File holding the block whose usages are wanted (usages)")
	f.StringVar(&flags.typeName, "type-name", "", "Placeholder type (print, typedefGen)")
	f.IntVar(&flags.level, "level", 0, "Weave level, 1 also copies variable annotations (weave)")
	f.DurationVar(&flags.timeout, "timeout", consts.Timeout30Seconds, "Request timeout")
	f.BoolVar(&flags.raw, "raw", false, "Print the response frame as received")
	f.BoolVarP(&flags.verbose, "verbose", "v", false, "Print request details to stderr")

	return cmd
}

func buildRequest(flags *clientFlags, command protocol.Command, text []byte) (*protocol.Request, error) {
	req := socketclient.NewRequest(command, text)
	req.TypeName = flags.typeName
	req.Level = flags.level

	payloads := []struct {
		path string
		dst  *[]byte
	}{
		{flags.original, &req.Original},
		{flags.nettle, &req.Nettle},
		{flags.inner, &req.InnerBlock},
	}
	for _, p := range payloads {
		if p.path == "" {
			continue
		}
		data, err := os.ReadFile(p.path)
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", p.path, err)
		}
		*p.dst = data
	}
	return req, nil
}

func send(ctx context.Context, flags *clientFlags, args []string, stdout, stderr io.Writer) error {
	socketPath, file := args[0], args[2]
	command, err := protocol.ParseCommand(args[1])
	if err != nil {
		return err
	}

	text, err := os.ReadFile(file)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", file, err)
	}
	req, err := buildRequest(flags, command, text)
	if err != nil {
		return err
	}

	if flags.verbose {
		language := analysis.DetectLanguage(file)
		if language == "" {
			language = "unknown"
		}
		fmt.Fprintf(stderr, "%s %s (%d bytes, %s) request_id=%s\n",
			color.CyanString("%s", command), file, len(text), language, req.RequestID)
	}

	client, err := socketclient.NewClient(socketPath)
	if err != nil {
		return err
	}
	if flags.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, flags.timeout)
		defer cancel()
	}
	if err := client.Connect(ctx); err != nil {
		return err
	}
	defer client.Close()

	resp, err := client.Send(ctx, req)
	if err != nil {
		return err
	}

	if flags.raw {
		frame, err := protocol.EncodeResponse(resp)
		if err != nil {
			return err
		}
		_, err = stdout.Write(frame)
		return err
	}

	return printResponse(resp, stdout, stderr)
}

func printResponse(resp *protocol.Response, stdout, stderr io.Writer) error {
	if !resp.OK() {
		fmt.Fprintln(stderr, color.RedString("Error: %s", resp.Message))
		return errFailed
	}

	if len(resp.Text) > 0 {
		stdout.Write(resp.Text)
		if resp.Text[len(resp.Text)-1] != '\n' {
			fmt.Fprintln(stdout)
		}
	}
	for _, problem := range resp.Problems {
		fmt.Fprintln(stderr, color.YellowString("problem: %s", problem))
	}
	if resp.Score != nil {
		fmt.Fprintf(stderr, "score: %d\n", *resp.Score)
	}
	if resp.Errors != nil {
		if *resp.Errors == 0 {
			fmt.Fprintln(stderr, color.GreenString("errors: 0"))
		} else {
			fmt.Fprintln(stderr, color.RedString("errors: %d", *resp.Errors))
		}
	}
	return nil
}

func execute(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	cmd := newRootCommand(ctx, stdout, stderr)
	cmd.SetArgs(args)
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)

	err := cmd.Execute()
	switch {
	case err == nil:
		return consts.ExitOK
	case errors.Is(err, errFailed):
		return consts.ExitStartupFailed
	}
	fmt.Fprintln(stderr, color.RedString("Error: %v", err))
	return consts.ExitStartupFailed
}

func main() {
	os.Exit(execute(context.Background(), os.Args[1:], os.Stdout, os.Stderr))
}
