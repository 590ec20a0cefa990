package main

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/xyonico/BeatSaberSongLoader/internal/infra/cache"
)

var (
	listQuery string
	listPage  int
	listLimit int
	listJSON  bool
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List songs from the song index",
	Long:  `list reads the SQLite song index written by scan and serve. It does not touch the songs folder.`,
	RunE:  runList,
}

func init() {
	listCmd.Flags().StringVar(&listQuery, "query", "", "Filter by title, subtitle or author")
	listCmd.Flags().IntVar(&listPage, "page", 1, "Page number")
	listCmd.Flags().IntVar(&listLimit, "limit", 50, "Songs per page (max 200)")
	listCmd.Flags().BoolVar(&listJSON, "json", false, "Print JSON instead of a table")
}

func runList(cmd *cobra.Command, args []string) error {
	db, err := openIndex(cfg)
	if err != nil {
		return err
	}
	defer closeIndex(db)

	pag := cache.NewPagination(listPage, listLimit)
	songs, total, err := cache.NewDAO(db).ListSongs(listQuery, pag)
	if err != nil {
		return fmt.Errorf("list songs: %w", err)
	}

	if listJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(map[string]any{
			"songs": songs,
			"total": total,
			"page":  pag.Page,
			"limit": pag.Limit,
		})
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "HASH\tTITLE\tAUTHOR\tBPM\tNOTES")
	for _, s := range songs {
		fmt.Fprintf(w, "%s\t%s\t%s\t%g\t%d\n", shortHash(s.Hash), s.Title, s.Author, s.BPM, s.NoteCount)
	}
	if err := w.Flush(); err != nil {
		return err
	}

	fmt.Fprintf(os.Stderr, "Page %d: %d of %d songs\n", pag.Page, len(songs), total)
	return nil
}
