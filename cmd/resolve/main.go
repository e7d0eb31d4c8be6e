// Command resolve runs the resolution pipeline once for a single playlist
// source document and prints the result, without the HTTP server.
//
// Discovery credentials come from the INDEX_API_KEY and INDEX_API_SECRET
// environment variables, matching the server.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"playlist-resolver/internal/startup"
)

var rootCmd = &cobra.Command{
	Use:   "resolve <feed-url>",
	Short: "Resolve a playlist source document to playable tracks",
	Long: `Resolve fetches a playlist source document, extracts its remote item
references, and resolves each one to a playable track record.

Examples:
  resolve https://example.com/playlist.xml
  resolve --database ./playlists.db --timeout 30s https://example.com/playlist.xml
  resolve --json https://example.com/playlist.xml | jq '.tracks[].title'`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		opts := runOptions{
			feedURL:      args[0],
			databasePath: mustString(cmd, "database"),
			timeout:      mustDuration(cmd, "timeout"),
			asJSON:       mustBool(cmd, "json"),
			itemGUIDOnly: mustBool(cmd, "item-guid-only"),
		}
		return run(cmd.OutOrStdout(), opts)
	},
	SilenceUsage: true,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		info := startup.GetBuildInfo()
		fmt.Fprintf(cmd.OutOrStdout(), "resolve %s (%s, built %s, %s %s/%s)\n",
			info.Version, info.Commit, info.BuildTime, info.GoVersion, info.OS, info.Arch)
	},
}

func init() {
	rootCmd.Flags().String("database", "", "path to a track database for tier-1 lookups and write-back")
	rootCmd.Flags().Duration("timeout", 0, "overall resolution budget (default 45s)")
	rootCmd.Flags().Bool("json", false, "emit the full result as JSON")
	rootCmd.Flags().Bool("item-guid-only", false, "match stored tracks by itemGuid alone")
	rootCmd.AddCommand(versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
