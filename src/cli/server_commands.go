package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"go.lsp.dev/protocol"

	"agents-ide/src/internal/common"
	"agents-ide/src/internal/errors"
	"agents-ide/src/server/capabilities"
	"agents-ide/src/server/documents"
	"agents-ide/src/server/lsp"
	"agents-ide/src/server/navigation"
	"agents-ide/src/server/registry"
)

type sessionFunc func(ctx context.Context, sess *lsp.Session, nav *navigation.Client) error

// withSession starts a session for the workspace root, runs fn against it
// and stops the server afterwards
func withSession(ctx context.Context, opts *options, fn sessionFunc) error {
	cfg, err := loadConfig(opts)
	if err != nil {
		return err
	}
	root := opts.root
	if root == "" {
		if root, err = os.Getwd(); err != nil {
			return fmt.Errorf("failed to get working directory: %w", err)
		}
	}

	opts.command = cfg.Server.Command
	reg := registry.New(cfg.SessionConfig())
	defer func() {
		if err := reg.StopAll(); err != nil {
			common.CLILogger.Warn("Language server did not stop cleanly: %v", err)
		}
	}()

	docs := documents.NewManager(cfg.Server.LanguageID)
	return reg.Do(ctx, root, func(sess *lsp.Session) error {
		nav := navigation.New(sess, docs, cfg.NavigationOptions())
		err := fn(ctx, sess, nav)
		if cerr := nav.CloseDocuments(); cerr != nil {
			common.CLILogger.Debug("Closing documents failed: %v", cerr)
		}
		return err
	})
}

func writeJSON(out io.Writer, raw json.RawMessage) error {
	var buf bytes.Buffer
	if err := json.Indent(&buf, raw, "", "  "); err != nil {
		return fmt.Errorf("failed to format result: %w", err)
	}
	buf.WriteByte('\n')
	_, err := out.Write(buf.Bytes())
	return err
}

func parsePosition(args []string) (string, navigation.Position, error) {
	line, err := strconv.Atoi(args[1])
	if err != nil {
		return "", navigation.Position{}, errors.NewValidationError("line", fmt.Sprintf("%q is not a number", args[1]))
	}
	column, err := strconv.Atoi(args[2])
	if err != nil {
		return "", navigation.Position{}, errors.NewValidationError("column", fmt.Sprintf("%q is not a number", args[2]))
	}
	return args[0], navigation.Position{Line: line, Column: column}, nil
}

// RunStart performs the handshake and prints the server's initialize result
func RunStart(ctx context.Context, out io.Writer, opts *options) error {
	return withSession(ctx, opts, func(ctx context.Context, sess *lsp.Session, _ *navigation.Client) error {
		common.CLILogger.Info("Language server ready (session %s, pid %d)", sess.ID(), sess.PID())
		return writeJSON(out, sess.InitializeResult())
	})
}

// RunCapabilities prints each known request method and whether the server
// advertises it
func RunCapabilities(ctx context.Context, out io.Writer, opts *options) error {
	return withSession(ctx, opts, func(ctx context.Context, sess *lsp.Session, _ *navigation.Client) error {
		caps, err := capabilities.Parse(sess.InitializeResult(), opts.command)
		if err != nil {
			return err
		}
		for _, method := range capabilities.Methods() {
			state := "unsupported"
			if caps.Supports(method) {
				state = "supported"
			}
			fmt.Fprintf(out, "%-36s %s\n", method, state)
		}
		return nil
	})
}

// RunRequest sends one raw request. params must be JSON when given.
func RunRequest(ctx context.Context, out io.Writer, opts *options, method, params string) error {
	var raw json.RawMessage
	if params != "" {
		if !json.Valid([]byte(params)) {
			return errors.NewValidationError("params", "params must be valid JSON")
		}
		raw = json.RawMessage(params)
	}
	var timeout time.Duration
	if opts.timeout != "" {
		d, err := time.ParseDuration(opts.timeout)
		if err != nil || d <= 0 {
			return errors.NewValidationError(FlagTimeout, fmt.Sprintf("invalid timeout %q", opts.timeout))
		}
		timeout = d
	}

	return withSession(ctx, opts, func(ctx context.Context, sess *lsp.Session, _ *navigation.Client) error {
		var p interface{}
		if raw != nil {
			p = raw
		}
		result, err := sess.Request(ctx, method, p, timeout)
		if err != nil {
			return err
		}
		return writeJSON(out, result)
	})
}

// RunDiagnostics prints the diagnostics of one file
func RunDiagnostics(ctx context.Context, out io.Writer, opts *options, path string) error {
	return withSession(ctx, opts, func(ctx context.Context, _ *lsp.Session, nav *navigation.Client) error {
		diags, err := nav.Diagnostics(ctx, path)
		if err != nil {
			return err
		}
		if len(diags) == 0 {
			fmt.Fprintln(out, "No diagnostics")
			return nil
		}
		for _, d := range diags {
			fmt.Fprintf(out, "%s:%s\n", path, navigation.FormatDiagnostic(d))
		}
		return nil
	})
}

// RunSymbols prints the symbol outline of one file
func RunSymbols(ctx context.Context, out io.Writer, opts *options, path string) error {
	filter := navigation.SymbolFilter{MaxDepth: opts.depth}
	for _, name := range opts.kinds {
		kind, ok := navigation.ParseSymbolKind(name)
		if !ok {
			return errors.NewValidationError(FlagKind, fmt.Sprintf("unknown symbol kind %q", name))
		}
		filter.Kinds = append(filter.Kinds, kind)
	}

	return withSession(ctx, opts, func(ctx context.Context, _ *lsp.Session, nav *navigation.Client) error {
		symbols, err := nav.DocumentSymbols(ctx, path)
		if err != nil {
			return err
		}
		lines := navigation.FormatSymbols(symbols, filter)
		if len(lines) == 0 {
			fmt.Fprintln(out, "No symbols")
			return nil
		}
		for _, line := range lines {
			fmt.Fprintln(out, line)
		}
		return nil
	})
}

func printLocations(out io.Writer, locs []protocol.Location) {
	if len(locs) == 0 {
		fmt.Fprintln(out, "No locations found")
		return
	}
	for _, loc := range locs {
		fmt.Fprintln(out, navigation.FormatLocation(loc))
	}
}

// RunDefinition prints the definition locations for a position
func RunDefinition(ctx context.Context, out io.Writer, opts *options, args []string) error {
	path, pos, err := parsePosition(args)
	if err != nil {
		return err
	}
	return withSession(ctx, opts, func(ctx context.Context, _ *lsp.Session, nav *navigation.Client) error {
		locs, err := nav.Definition(ctx, path, pos)
		if err != nil {
			return err
		}
		printLocations(out, locs)
		return nil
	})
}

// RunReferences prints the references to the symbol at a position
func RunReferences(ctx context.Context, out io.Writer, opts *options, args []string) error {
	path, pos, err := parsePosition(args)
	if err != nil {
		return err
	}
	return withSession(ctx, opts, func(ctx context.Context, _ *lsp.Session, nav *navigation.Client) error {
		locs, err := nav.References(ctx, path, pos, !opts.noDecl)
		if err != nil {
			return err
		}
		printLocations(out, locs)
		return nil
	})
}

// RunHover prints hover text for a position
func RunHover(ctx context.Context, out io.Writer, opts *options, args []string) error {
	path, pos, err := parsePosition(args)
	if err != nil {
		return err
	}
	return withSession(ctx, opts, func(ctx context.Context, _ *lsp.Session, nav *navigation.Client) error {
		text, err := nav.Hover(ctx, path, pos)
		if err != nil {
			return err
		}
		if text == "" {
			text = "No hover information available"
		}
		fmt.Fprintln(out, text)
		return nil
	})
}
