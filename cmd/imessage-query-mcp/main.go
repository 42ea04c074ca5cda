package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"

	"github.com/spf13/cobra"

	"github.com/hannesrudolph/imessage-query-mcp/internal/chatdb"
	"github.com/hannesrudolph/imessage-query-mcp/internal/config"
	"github.com/hannesrudolph/imessage-query-mcp/internal/mcpserver"
)

var (
	version    = "dev"
	commit     = "none"
	buildDate  = "unknown"
	jsonOutput bool
)

func main() {
	// stdout carries the MCP transport; everything else goes to stderr.
	log.SetOutput(os.Stderr)

	rootCmd := &cobra.Command{
		Use:   "imessage-query-mcp",
		Short: "Read-only MCP server for the iMessage database",
		Long: `imessage-query-mcp exposes the local iMessage database (chat.db)
to MCP clients as read-only query tools. Transcripts can be fetched
by phone number, email address, or group chat name.

Run with no arguments to serve MCP on stdin/stdout, which is what an
MCP client configuration should invoke.`,
		// MCP clients run the bare binary.
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe()
		},
	}

	rootCmd.PersistentFlags().BoolVarP(&jsonOutput, "json", "j", false, "Output as JSON")

	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version info",
		Run: func(cmd *cobra.Command, args []string) {
			if jsonOutput {
				printJSON(map[string]string{
					"version": version,
					"commit":  commit,
					"date":    buildDate,
				})
			} else {
				fmt.Printf("imessage-query-mcp %s (%s, %s)\n", version, commit, buildDate)
			}
		},
	})

	rootCmd.AddCommand(&cobra.Command{
		Use:   "serve",
		Short: "Serve the MCP protocol on stdin/stdout",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe()
		},
	})

	rootCmd.AddCommand(&cobra.Command{
		Use:   "doctor",
		Short: "Check that the Messages database is reachable",
		Run: func(cmd *cobra.Command, args []string) {
			cfg, err := config.Load()
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
				os.Exit(1)
			}

			report := chatdb.CheckAccess(cfg.ResolveDBPath())
			if jsonOutput {
				printJSON(report)
			} else {
				fmt.Printf("database: %s\n", report.Path)
				fmt.Printf("exists:   %v\n", report.Exists)
				fmt.Printf("readable: %v\n", report.Readable)
				if report.Hint != "" {
					fmt.Printf("hint:     %s\n", report.Hint)
				}
			}
			if !report.Readable {
				os.Exit(1)
			}
		},
	})

	var (
		startDate string
		endDate   string
		limit     int
	)
	transcriptCmd := &cobra.Command{
		Use:   "transcript <contact>",
		Short: "Print a chat transcript without going through MCP",
		Long: `Transcript runs the same query the get_chat_transcript tool runs
and prints the result as JSON. Useful for checking what an MCP
client would see.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}

			mgr := chatdb.NewManager(cfg.ResolveDBPath())
			defer mgr.Close()

			srv := mcpserver.New(cfg, mgr, version)
			result, err := srv.GetChatTranscript(context.Background(), mcpserver.TranscriptRequest{
				Contact:   args[0],
				StartDate: startDate,
				EndDate:   endDate,
				Limit:     limit,
			})
			if err != nil {
				return err
			}
			printJSON(result)
			return nil
		},
	}
	transcriptCmd.Flags().StringVar(&startDate, "start", "", "Start date, inclusive (YYYY-MM-DD or RFC 3339)")
	transcriptCmd.Flags().StringVar(&endDate, "end", "", "End date, inclusive (YYYY-MM-DD or RFC 3339)")
	transcriptCmd.Flags().IntVar(&limit, "limit", 0, "Maximum number of messages; keeps the most recent")
	rootCmd.AddCommand(transcriptCmd)

	rootCmd.AddCommand(&cobra.Command{
		Use:   "chats [contact]",
		Short: "List chats, optionally filtered by a contact reference",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}

			mgr := chatdb.NewManager(cfg.ResolveDBPath())
			defer mgr.Close()

			contact := ""
			if len(args) == 1 {
				contact = args[0]
			}

			srv := mcpserver.New(cfg, mgr, version)
			chats, err := srv.ListChats(context.Background(), contact)
			if err != nil {
				return err
			}

			if jsonOutput {
				printJSON(chats)
				return nil
			}
			for _, c := range chats {
				name := c.DisplayName
				if name == "" {
					name = c.Identifier
				}
				kind := "direct"
				if c.IsGroup() {
					kind = "group"
				}
				fmt.Printf("%d\t%s\t%s\n", c.ID, kind, name)
			}
			return nil
		},
	})

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func runServe() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	mgr := chatdb.NewManager(cfg.ResolveDBPath())
	defer mgr.Close()

	return mcpserver.New(cfg, mgr, version).ServeStdio()
}

func printJSON(v interface{}) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(string(data))
}
