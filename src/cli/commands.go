package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"agents-ide/src/internal/common"
)

// CLI Constants
const (
	CmdConfig      = "config"
	CmdConfigInit  = "init"
	CmdConfigShow  = "show"
	CmdStart       = "start"
	CmdCaps        = "capabilities"
	CmdRequest     = "request"
	CmdDiagnostics = "diagnostics"
	CmdSymbols     = "symbols"
	CmdDefinition  = "definition"
	CmdReferences  = "references"
	CmdHover       = "hover"
	CmdVersion     = "version"
	FlagConfig     = "config"
	FlagRoot       = "root"
	FlagVerbose    = "verbose"
	FlagForce      = "force"
	FlagTimeout    = "timeout"
	FlagKind       = "kind"
	FlagDepth      = "depth"
	FlagNoDecl     = "no-declaration"
)

// options holds the flag values of one command tree
type options struct {
	configPath string
	root       string
	verbose    bool
	force      bool
	timeout    string
	kinds      []string
	depth      int
	noDecl     bool

	// command is the configured server executable, set once config loads
	command string
}

// NewRootCommand builds the agents-ide command tree
func NewRootCommand() *cobra.Command {
	opts := &options{}

	rootCmd := &cobra.Command{
		Use:   "agents-ide",
		Short: "Drive a language server from the command line",
		Long: `agents-ide keeps a language server running over stdio and exposes its
editor features (definitions, references, symbols, diagnostics) as commands.

QUICK START:
  agents-ide config init                   # Write ~/.agents-ide/config.yaml
  agents-ide start                         # Handshake and print server capabilities
  agents-ide symbols src/app.py            # Outline of a file
  agents-ide diagnostics src/app.py        # Errors and warnings for a file
  agents-ide request workspace/symbol '{"query":"main"}'

Positions are 1-indexed: line 1 column 1 is the first character of a file.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return applyLogLevel(opts)
		},
	}
	rootCmd.PersistentFlags().StringVarP(&opts.configPath, FlagConfig, "c", "", "Configuration file path (default ~/.agents-ide/config.yaml)")
	rootCmd.PersistentFlags().StringVarP(&opts.root, FlagRoot, "r", "", "Workspace root (default current directory)")
	rootCmd.PersistentFlags().BoolVarP(&opts.verbose, FlagVerbose, "v", false, "Debug logging and detailed output")

	configCmd := &cobra.Command{
		Use:   CmdConfig,
		Short: "Manage the configuration file",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}
	configInitCmd := &cobra.Command{
		Use:   CmdConfigInit,
		Short: "Write the default configuration file",
		Long: `Write the default configuration (pyright-langserver --stdio) to the config path.
An existing file is kept unless --force is given.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return InitConfig(cmd.OutOrStdout(), opts.configPath, opts.force)
		},
	}
	configInitCmd.Flags().BoolVarP(&opts.force, FlagForce, "f", false, "Overwrite an existing configuration file")
	configShowCmd := &cobra.Command{
		Use:   CmdConfigShow,
		Short: "Print the effective configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return ShowConfig(cmd.OutOrStdout(), opts.configPath)
		},
	}
	configCmd.AddCommand(configInitCmd, configShowCmd)

	startCmd := &cobra.Command{
		Use:   CmdStart,
		Short: "Start the language server and print its capabilities",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return RunStart(cmd.Context(), cmd.OutOrStdout(), opts)
		},
	}

	capsCmd := &cobra.Command{
		Use:   CmdCaps,
		Short: "List which requests the language server accepts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return RunCapabilities(cmd.Context(), cmd.OutOrStdout(), opts)
		},
	}

	requestCmd := &cobra.Command{
		Use:   CmdRequest + " <method> [params-json]",
		Short: "Send one raw request and print the result",
		Long: `Send a single JSON-RPC request to the language server and print the result.

Examples:
  agents-ide request workspace/symbol '{"query":"Config"}'
  agents-ide request textDocument/hover '{"textDocument":{"uri":"file:///src/a.py"},"position":{"line":0,"character":4}}'`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			params := ""
			if len(args) == 2 {
				params = args[1]
			}
			return RunRequest(cmd.Context(), cmd.OutOrStdout(), opts, args[0], params)
		},
	}
	requestCmd.Flags().StringVar(&opts.timeout, FlagTimeout, "", "Request timeout such as 10s (default from config)")

	diagnosticsCmd := &cobra.Command{
		Use:   CmdDiagnostics + " <file>",
		Short: "Print diagnostics for a file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return RunDiagnostics(cmd.Context(), cmd.OutOrStdout(), opts, args[0])
		},
	}

	symbolsCmd := &cobra.Command{
		Use:   CmdSymbols + " <file>",
		Short: "Print the symbol outline of a file",
		Long: `Print the symbols of a file as an indented tree.

Examples:
  agents-ide symbols src/app.py
  agents-ide symbols src/app.py --kind class,function --depth 1`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return RunSymbols(cmd.Context(), cmd.OutOrStdout(), opts, args[0])
		},
	}
	symbolsCmd.Flags().StringSliceVarP(&opts.kinds, FlagKind, "k", nil, "Only print these symbol kinds (class, function, enum_member, ...)")
	symbolsCmd.Flags().IntVarP(&opts.depth, FlagDepth, "d", 0, "Tree levels to print, 0 for all")

	definitionCmd := &cobra.Command{
		Use:   CmdDefinition + " <file> <line> <column>",
		Short: "Print where the symbol at a position is defined",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			return RunDefinition(cmd.Context(), cmd.OutOrStdout(), opts, args)
		},
	}
	referencesCmd := &cobra.Command{
		Use:   CmdReferences + " <file> <line> <column>",
		Short: "Print every reference to the symbol at a position",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			return RunReferences(cmd.Context(), cmd.OutOrStdout(), opts, args)
		},
	}
	referencesCmd.Flags().BoolVar(&opts.noDecl, FlagNoDecl, false, "Leave the declaration out of the results")
	hoverCmd := &cobra.Command{
		Use:   CmdHover + " <file> <line> <column>",
		Short: "Print type and documentation for a position",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			return RunHover(cmd.Context(), cmd.OutOrStdout(), opts, args)
		},
	}

	versionCmd := &cobra.Command{
		Use:   CmdVersion,
		Short: "Show version information",
		Long: `Display version information for agents-ide.
Use --verbose for commit hash, build date and Go version.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return ShowVersion(cmd.OutOrStdout(), opts.verbose)
		},
	}

	rootCmd.AddCommand(configCmd, startCmd, capsCmd, requestCmd, diagnosticsCmd, symbolsCmd,
		definitionCmd, referencesCmd, hoverCmd, versionCmd)
	return rootCmd
}

// Execute runs the root command until it finishes or the process is
// interrupted, then flushes the loggers
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	defer common.CLILogger.Sync()
	return NewRootCommand().ExecuteContext(ctx)
}
