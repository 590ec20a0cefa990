// Command songloader discovers custom songs, keeps the archive cache and the
// song index current, and serves the loaded catalog to UI clients.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/xyonico/BeatSaberSongLoader/internal/config"
	"github.com/xyonico/BeatSaberSongLoader/internal/logging"
)

var (
	configPath string
	songsDir   string
	debug      bool

	cfg *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "songloader",
	Short: "Discover, cache and serve custom songs",
	Long: `songloader scans a custom songs folder, extracts song archives into a
content-addressed cache, drops duplicate songs and keeps a SQLite index of
what it loaded.

Examples:
  songloader scan --songs-dir ./CustomSongs
  songloader scan --full
  songloader list --query "camellia"
  songloader serve --config songloader.yaml`,
	SilenceUsage:      true,
	PersistentPreRunE: setup,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "YAML config file")
	rootCmd.PersistentFlags().StringVar(&songsDir, "songs-dir", "", "Custom songs folder (overrides config)")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "Enable debug logging")

	rootCmd.AddCommand(scanCmd, listCmd, serveCmd, versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func setup(cmd *cobra.Command, args []string) error {
	loaded, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if songsDir != "" {
		loaded.SongsDir = songsDir
	}
	if debug {
		loaded.Log.Level = "debug"
	}
	cfg = loaded

	logging.Setup(cfg.Log.Level, cfg.Log.Pretty)
	return nil
}
