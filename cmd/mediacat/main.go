package main

import (
	"fmt"
	"log"
	"os"

	"github.com/spf13/cobra"

	"mediacat/internal/catalog"
	"mediacat/internal/config"
	"mediacat/internal/hashing"
	"mediacat/internal/importer"
	"mediacat/internal/scanner"
	"mediacat/internal/stats"
)

var (
	// Version is set at build time
	Version = "dev"

	// Global flags
	configPath string
	cfg        *config.Config
	db         *catalog.DB
)

func main() {
	// Ensure database is closed even on panic
	defer func() {
		if r := recover(); r != nil {
			if db != nil {
				db.Close()
			}
			panic(r) // Re-panic after cleanup
		}
	}()

	rootCmd := &cobra.Command{
		Use:   "mediacat",
		Short: "Media catalog - content-addressed import and provenance tracking",
		Long: `Mediacat catalogs media files on a shared volume without moving or
deleting them. Imports deduplicate by content fingerprint, link derivatives
to their raw originals, and keep the catalog's provenance graph consistent.`,
		Version: Version,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			var err error
			cfg, err = config.Load(configPath)
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}

			// Auto-generate config file if it doesn't exist
			if _, err := os.Stat(configPath); os.IsNotExist(err) {
				log.Printf("Config file not found, creating default at %s", configPath)
				if err := cfg.Save(configPath); err != nil {
					log.Printf("Warning: failed to save default config: %v", err)
				}
			}

			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("invalid configuration: %w", err)
			}

			db, err = catalog.NewWithConfig(cfg.DatabasePath, catalog.DBConfig{
				MaxOpenConns:    cfg.DBMaxOpenConns,
				MaxIdleConns:    cfg.DBMaxIdleConns,
				ConnMaxLifetime: cfg.DBConnMaxLifetime,
			})
			if err != nil {
				return fmt.Errorf("failed to open catalog: %w", err)
			}

			return nil
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			if db != nil {
				return db.Close()
			}
			return nil
		},
	}

	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "/appdata/config/mediacat.yaml", "Path to configuration file")

	importCmd := &cobra.Command{
		Use:   "import <directory>",
		Short: "Import media files from a directory into the catalog",
		Args:  cobra.ExactArgs(1),
		RunE:  runImport,
	}
	importCmd.Flags().String("logical-root", "", "Logical storage root recorded for imported entries (defaults to import_storage_root)")

	resolveCmd := &cobra.Command{
		Use:   "resolve <storage-root> <directory> <filename>",
		Short: "Resolve a logical catalog location to a physical path",
		Args:  cobra.ExactArgs(3),
		RunE:  runResolve,
	}
	resolveCmd.Flags().Bool("check", false, "Also check that the resolved path exists")

	recomputeCmd := &cobra.Command{
		Use:   "recompute-final",
		Short: "Recompute every entry's final flag from actual child counts",
		RunE:  runRecomputeFinal,
	}

	verifyCmd := &cobra.Command{
		Use:   "verify",
		Short: "Scan the catalog for provenance inconsistencies",
		RunE:  runVerify,
	}

	statsCmd := &cobra.Command{
		Use:   "stats",
		Short: "Display catalog statistics",
		RunE:  runStats,
	}

	rootCmd.AddCommand(importCmd, resolveCmd, recomputeCmd, verifyCmd, statsCmd)

	if err := rootCmd.Execute(); err != nil {
		if db != nil {
			db.Close()
		}
		os.Exit(1)
	}
}

func runImport(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	scanRoot := args[0]

	logicalRoot, _ := cmd.Flags().GetString("logical-root")
	if logicalRoot == "" {
		logicalRoot = cfg.ImportStorageRoot
	}

	result, err := scanner.Scan(ctx, scanRoot, logicalRoot, scanner.NoopExtractor{})
	if err != nil {
		return fmt.Errorf("scan failed: %w", err)
	}
	for _, skipped := range result.Skipped {
		log.Printf("Warning: %s", skipped)
	}
	log.Printf("Found %d media files under %s", len(result.Candidates), scanRoot)

	hasher := hashing.NewFileHasher(cfg.HashAlgorithm, cfg.HashBufferSize)
	hasher.SetThrottle(cfg.IOThrottleMBps)

	existing, err := db.ExistingHashes(ctx)
	if err != nil {
		return fmt.Errorf("failed to load catalog hashes: %w", err)
	}

	imp := importer.New(db, hasher, cfg.ImportWorkers, cfg.ImportBufferSize)
	report, err := imp.Import(ctx, result.Candidates, existing)
	if report != nil {
		fmt.Fprint(cmd.OutOrStdout(), report.Summary())
	}
	if err != nil {
		return fmt.Errorf("import failed: %w", err)
	}

	return nil
}

func runResolve(cmd *cobra.Command, args []string) error {
	resolver := cfg.NewResolver()
	out := cmd.OutOrStdout()

	// validate_exists makes existence checking the configured default; the
	// flag requests it for a single invocation
	check, _ := cmd.Flags().GetBool("check")
	if check || cfg.ValidateExists {
		resolved, exists, err := resolver.CheckExists(args[0], args[1], args[2])
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "%s (exists: %v)\n", resolved, exists)
		return nil
	}

	resolved, err := resolver.Resolve(args[0], args[1], args[2])
	if err != nil {
		return err
	}
	fmt.Fprintln(out, resolved)
	return nil
}

func runRecomputeFinal(cmd *cobra.Command, args []string) error {
	changed, err := db.RecomputeFinalFlags(cmd.Context())
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Recomputed final flags: %d entries corrected\n", changed)
	return nil
}

func runVerify(cmd *cobra.Command, args []string) error {
	report, err := db.VerifyConsistency(cmd.Context())
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if report.Clean() {
		fmt.Fprintln(out, "Catalog is consistent")
		return nil
	}

	for _, ref := range report.OrphanedReferences {
		fmt.Fprintf(out, "orphaned reference: entry %d points to missing origin %d\n", ref.EntryID, ref.OriginID)
	}
	for _, id := range report.Contradictions {
		fmt.Fprintf(out, "contradiction: entry %d has is_original inconsistent with origin_id\n", id)
	}
	for _, id := range report.FinalityDrift {
		fmt.Fprintf(out, "drift: entry %d has a stale final flag (run recompute-final)\n", id)
	}
	for _, cycle := range report.Cycles {
		fmt.Fprintf(out, "cycle: origin chain %v loops\n", cycle)
	}

	return report.Err()
}

func runStats(cmd *cobra.Command, args []string) error {
	calculator := stats.NewCalculator(db)
	s, err := calculator.Calculate()
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Entries:      %d (%d bytes)\n", s.TotalEntries, s.TotalSize)
	fmt.Fprintf(out, "Originals:    %d\n", s.Originals)
	fmt.Fprintf(out, "Derivatives:  %d\n", s.Derivatives)
	fmt.Fprintf(out, "Final:        %d\n", s.FinalEntries)
	fmt.Fprintf(out, "Soft-deleted: %d\n", s.SoftDeleted)
	fmt.Fprintf(out, "Import runs:  %d\n", s.ImportRuns)
	return nil
}
