package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/abelbrown/newsfeed/internal/logging"
	"github.com/abelbrown/newsfeed/internal/store"
	"github.com/spf13/cobra"
)

var (
	flagImportCountry  string
	flagImportCategory string
)

var importCmd = &cobra.Command{
	Use:   "import <file>...",
	Short: "Load NewsAPI response dumps into the archive",
	Long: "import reads NewsAPI JSON responses (or bare article arrays) and stores the articles in the " +
		"SQLite archive read by --archive. Articles already present are skipped.",
	Args: cobra.MinimumNArgs(1),
	RunE: runImport,
}

func init() {
	importCmd.Flags().StringVar(&flagImportCountry, "country", "", "country the articles were headlined in")
	importCmd.Flags().StringVar(&flagImportCategory, "category", "", "headline category of the articles")
}

func runImport(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if err := logging.Init(logging.Options{Dir: cfg.Log.Dir, Level: cfg.Log.Level, Version: version}); err != nil {
		return fmt.Errorf("initializing logging: %w", err)
	}
	defer logging.Close()

	path := archivePath(cfg)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("creating archive directory: %w", err)
	}
	st, err := store.Open(path)
	if err != nil {
		return fmt.Errorf("opening archive: %w", err)
	}
	defer st.Close()

	tags := store.Tags{Country: flagImportCountry, Category: flagImportCategory}
	for _, name := range args {
		f, err := os.Open(name)
		if err != nil {
			return err
		}
		articles, err := store.DecodeArticles(f)
		f.Close()
		if err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
		added, err := st.SaveArticles(cmd.Context(), articles, tags)
		if err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
		logging.Info("imported", "file", name, "articles", len(articles), "added", added)
		fmt.Fprintf(cmd.OutOrStdout(), "%s: %d articles, %d new\n", name, len(articles), added)
	}

	total, err := st.Count(cmd.Context())
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "archive %s holds %d articles\n", path, total)
	return nil
}
