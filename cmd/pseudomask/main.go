package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"runtime"
	"time"

	"github.com/spf13/cobra"

	"github.com/consentkeys/pseudomask/internal/config"
	"github.com/consentkeys/pseudomask/internal/database"
	"github.com/consentkeys/pseudomask/internal/exporter"
	"github.com/consentkeys/pseudomask/internal/masker"
	"github.com/consentkeys/pseudomask/internal/profile"
	"github.com/consentkeys/pseudomask/internal/pseudonym"
	"github.com/consentkeys/pseudomask/internal/schema"
)

var (
	version = "0.1.0"

	configPath   string
	keyFlag      string
	outputPath   string
	verbose      bool
	dryRun       bool
	jsonOutput   bool
	dataType     string
	syncTruncate bool
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "pseudomask",
		Short: "Deterministic pseudonymisation tool",
		Long: `pseudomask derives stable pseudonyms and fake profile data from real
identifiers using a keyed HMAC, and exports databases with sensitive
columns replaced by those pseudonyms.

The same identifier, client and key always produce the same output, so
referential integrity across tables and runs is preserved without any
mapping state.

Supports MySQL, PostgreSQL, and SQLite databases for export.`,
		RunE: runExport,
	}

	rootCmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to config file (required)")
	rootCmd.Flags().StringVarP(&outputPath, "output", "o", "", "Output file path (default: stdout)")
	rootCmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
	rootCmd.Flags().BoolVar(&dryRun, "dry-run", false, "Show what would be done without executing")

	rootCmd.MarkFlagRequired("config")

	deriveCmd := &cobra.Command{
		Use:   "derive <user-id> <client-id>",
		Short: "Derive a pseudonym for an identifier",
		Long: `Derives the pseudonym for a user identifier in the context of a
client. The optional --data-type flag derives an independent pseudonym
for a separate purpose (e.g. email, analytics).`,
		Args: cobra.ExactArgs(2),
		RunE: runDerive,
	}
	deriveCmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to config file")
	deriveCmd.Flags().StringVarP(&keyFlag, "key", "k", "", "Secret key (at least 32 characters)")
	deriveCmd.Flags().StringVarP(&dataType, "data-type", "t", pseudonym.DataTypeDefault, "Data type context")
	rootCmd.AddCommand(deriveCmd)

	verifyCmd := &cobra.Command{
		Use:   "verify <pseudonym>",
		Short: "Check whether a string is a well-formed pseudonym",
		Long: `Checks the candidate against the pseudonym format. A match means the
string is shaped like a pseudonym, not that this key produced it.`,
		Args: cobra.ExactArgs(1),
		RunE: runVerify,
	}
	rootCmd.AddCommand(verifyCmd)

	profileCmd := &cobra.Command{
		Use:   "profile <user-id> <client-id>",
		Short: "Synthesize a fake profile for an identifier",
		Args:  cobra.ExactArgs(2),
		RunE:  runProfile,
	}
	profileCmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to config file")
	profileCmd.Flags().StringVarP(&keyFlag, "key", "k", "", "Secret key (at least 32 characters)")
	profileCmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	rootCmd.AddCommand(profileCmd)

	bulkCmd := &cobra.Command{
		Use:   "bulk <client-id> [user-id...]",
		Short: "Derive pseudonyms for a batch of identifiers",
		Long: `Derives pseudonyms for every user identifier given as an argument, or
read from stdin (one per line) when no identifiers are given. Entries
that fail validation are reported per entry without aborting the batch.

Output is a JSON object keyed by the input identifiers.`,
		Args: cobra.MinimumNArgs(1),
		RunE: runBulk,
	}
	bulkCmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to config file")
	bulkCmd.Flags().StringVarP(&keyFlag, "key", "k", "", "Secret key (at least 32 characters)")
	bulkCmd.Flags().StringVarP(&dataType, "data-type", "t", pseudonym.DataTypeDefault, "Data type context")
	rootCmd.AddCommand(bulkCmd)

	syncCmd := &cobra.Command{
		Use:   "sync",
		Short: "Sync config file with database tables",
		Long: `Connects to the database and adds any tables that are not
currently in the configuration file. Existing table configurations
are preserved.

New tables are added with an empty configuration (full export).
Use --truncate to add new tables with truncate: true instead.`,
		RunE: runSync,
	}
	syncCmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to config file (required)")
	syncCmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
	syncCmd.Flags().BoolVar(&dryRun, "dry-run", false, "Show what would be added without modifying the file")
	syncCmd.Flags().BoolVar(&syncTruncate, "truncate", false, "Add new tables with truncate: true")
	syncCmd.MarkFlagRequired("config")
	rootCmd.AddCommand(syncCmd)

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("pseudomask version %s\n", version)
		},
	}
	rootCmd.AddCommand(versionCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// loadKeyed resolves the secret key from --key or the config file and
// builds an engine plus the config (nil when only --key was given).
func loadKeyed() (*pseudonym.Engine, *config.Config, error) {
	if keyFlag != "" {
		engine, err := pseudonym.New(keyFlag)
		if err != nil {
			return nil, nil, err
		}
		return engine, nil, nil
	}

	if configPath == "" {
		return nil, nil, fmt.Errorf("either --key or --config is required")
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}

	engine, err := pseudonym.New(cfg.SecretKey)
	if err != nil {
		return nil, nil, err
	}
	return engine, cfg, nil
}

// loadSynthesizer builds a synthesizer, applying the config's pool and
// email domain overrides when a config file was given.
func loadSynthesizer() (*profile.Synthesizer, error) {
	engine, cfg, err := loadKeyed()
	if err != nil {
		return nil, err
	}
	if cfg != nil {
		return profile.New(engine, cfg.SynthesizerOptions()...)
	}
	return profile.New(engine)
}

func runDerive(cmd *cobra.Command, args []string) error {
	engine, _, err := loadKeyed()
	if err != nil {
		return err
	}

	p, err := engine.Derive(args[0], args[1], dataType)
	if err != nil {
		return err
	}

	fmt.Println(p)
	return nil
}

func runVerify(cmd *cobra.Command, args []string) error {
	if pseudonym.Verify(args[0]) {
		fmt.Println("valid")
		return nil
	}
	fmt.Println("invalid")
	os.Exit(1)
	return nil
}

func runProfile(cmd *cobra.Command, args []string) error {
	synth, err := loadSynthesizer()
	if err != nil {
		return err
	}

	p, err := synth.FakeProfile(args[0], args[1])
	if err != nil {
		return err
	}

	if jsonOutput {
		data, err := json.MarshalIndent(p, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(data))
		return nil
	}

	fmt.Printf("ID:      %s\n", p.ID)
	fmt.Printf("Email:   %s\n", p.Email)
	fmt.Printf("Name:    %s\n", p.DisplayName)
	fmt.Printf("Address: %s\n", p.Address)
	return nil
}

func runBulk(cmd *cobra.Command, args []string) error {
	synth, err := loadSynthesizer()
	if err != nil {
		return err
	}

	clientID := args[0]
	userIDs := args[1:]

	if len(userIDs) == 0 {
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			userIDs = append(userIDs, scanner.Text())
		}
		if err := scanner.Err(); err != nil {
			return fmt.Errorf("failed to read identifiers: %w", err)
		}
	}

	results, err := synth.BulkPseudonyms(userIDs, clientID, dataType)
	if err != nil {
		return err
	}

	data, err := json.MarshalIndent(results, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}

func runExport(cmd *cobra.Command, args []string) error {
	startTime := time.Now()

	// Get initial memory stats
	var memStatsBefore runtime.MemStats
	runtime.ReadMemStats(&memStatsBefore)

	// Load configuration
	if verbose {
		fmt.Printf("Loading configuration from: %s\n", configPath)
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.ValidateConnection(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	// Build the derivation pipeline and validate rules
	engine, err := pseudonym.New(cfg.SecretKey)
	if err != nil {
		return err
	}
	synth, err := profile.New(engine, cfg.SynthesizerOptions()...)
	if err != nil {
		return err
	}

	m := masker.New(cfg, engine, synth)
	if errors := m.ValidateRules(); len(errors) > 0 {
		for _, e := range errors {
			fmt.Fprintf(os.Stderr, "Warning: %s\n", e)
		}
	}

	// Create database driver
	if verbose {
		fmt.Printf("Connecting to %s database...\n", cfg.Connection.Type)
	}

	driver, err := database.NewDriver(cfg.Connection.Type)
	if err != nil {
		return err
	}

	if err := driver.Connect(&cfg.Connection); err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer driver.Close()

	// Analyze schema
	if verbose {
		fmt.Println("Analyzing database schema...")
	}

	analyser := schema.NewAnalyser(driver)
	tables, err := analyser.GetAllTables()
	if err != nil {
		return fmt.Errorf("failed to analyze schema: %w", err)
	}

	// Sort tables by dependencies
	if verbose {
		fmt.Println("Sorting tables by foreign key dependencies...")
	}

	sortedTables, err := analyser.SortTablesByDependency(tables)
	if err != nil {
		return fmt.Errorf("failed to sort tables: %w", err)
	}

	// Dry run mode
	if dryRun {
		return printDryRun(sortedTables, m)
	}

	// Determine output
	var output *os.File
	if outputPath != "" {
		output, err = os.Create(outputPath)
		if err != nil {
			return fmt.Errorf("failed to create output file: %w", err)
		}
		defer output.Close()

		if verbose {
			fmt.Printf("Writing output to: %s\n", outputPath)
		}
	} else {
		output = os.Stdout
	}

	// Export
	if verbose {
		fmt.Printf("Exporting %d tables...\n", len(sortedTables))
	}

	exp := exporter.New(driver, m, output, exporter.Options{
		Verbose:   verbose,
		BatchSize: exporter.DefaultBatchSize,
	})

	if err := exp.Export(sortedTables); err != nil {
		return fmt.Errorf("export failed: %w", err)
	}

	// Collect final statistics
	elapsed := time.Since(startTime)
	var memStatsAfter runtime.MemStats
	runtime.ReadMemStats(&memStatsAfter)
	stats := exp.GetStats()

	// Print statistics
	fmt.Fprintln(os.Stderr)
	fmt.Fprintln(os.Stderr, "=== Export Statistics ===")
	fmt.Fprintf(os.Stderr, "Tables exported:   %d\n", stats.TablesExported)
	fmt.Fprintf(os.Stderr, "Tables truncated:  %d\n", stats.TablesTruncated)
	fmt.Fprintf(os.Stderr, "Rows exported:     %d\n", stats.RowsExported)
	fmt.Fprintf(os.Stderr, "Run time:          %s\n", elapsed.Round(time.Millisecond))
	fmt.Fprintf(os.Stderr, "Memory used:       %s\n", formatBytes(memStatsAfter.TotalAlloc-memStatsBefore.TotalAlloc))
	fmt.Fprintf(os.Stderr, "Peak memory:       %s\n", formatBytes(memStatsAfter.HeapAlloc))
	fmt.Fprintf(os.Stderr, "CPU cores used:    %d\n", runtime.NumCPU())

	if verbose {
		fmt.Fprintln(os.Stderr)
		fmt.Fprintln(os.Stderr, "Export completed successfully!")
	}

	return nil
}

func printDryRun(tables []schema.TableInfo, m *masker.Masker) error {
	fmt.Println("=== DRY RUN MODE ===")
	fmt.Printf("Found %d tables\n\n", len(tables))

	for _, table := range tables {
		fmt.Printf("Table: %s\n", table.Name)
		fmt.Printf("  Rows: %d\n", table.RowCount)

		if m.ShouldTruncate(table.Name) {
			fmt.Println("  Action: TRUNCATE (no data will be exported)")
		} else {
			fmt.Println("  Action: FULL EXPORT")
		}

		if cols := m.MaskedColumns(table.Name); len(cols) > 0 {
			fmt.Printf("  Masked columns: %v\n", cols)
		}

		fmt.Println()
	}

	return nil
}

func runSync(cmd *cobra.Command, args []string) error {
	// Load configuration
	if verbose {
		fmt.Printf("Loading configuration from: %s\n", configPath)
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.ValidateConnection(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	// Create database driver
	if verbose {
		fmt.Printf("Connecting to %s database...\n", cfg.Connection.Type)
	}

	driver, err := database.NewDriver(cfg.Connection.Type)
	if err != nil {
		return err
	}

	if err := driver.Connect(&cfg.Connection); err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer driver.Close()

	// Get all tables from database
	if verbose {
		fmt.Println("Fetching tables from database...")
	}

	dbTables, err := driver.GetTables()
	if err != nil {
		return fmt.Errorf("failed to get tables: %w", err)
	}

	// Find tables not in config
	var newTables []string
	for _, table := range dbTables {
		if !cfg.HasTable(table) {
			newTables = append(newTables, table)
		}
	}

	if len(newTables) == 0 {
		fmt.Println("All database tables are already in the configuration.")
		return nil
	}

	// Report what will be added
	fmt.Printf("Found %d new table(s) not in configuration:\n", len(newTables))
	for _, table := range newTables {
		if syncTruncate {
			fmt.Printf("  + %s (truncate: true)\n", table)
		} else {
			fmt.Printf("  + %s (full export)\n", table)
		}
	}

	// Dry run mode - don't modify the file
	if dryRun {
		fmt.Println("\nDry run mode - no changes made to config file.")
		return nil
	}

	// Add new tables to config
	for _, table := range newTables {
		var tableConfig *config.TableConfig
		if syncTruncate {
			tableConfig = &config.TableConfig{Truncate: true}
		} else {
			tableConfig = &config.TableConfig{}
		}
		cfg.AddTable(table, tableConfig)
	}

	// Save the updated config
	if err := cfg.Save(configPath); err != nil {
		return fmt.Errorf("failed to save config: %w", err)
	}

	fmt.Printf("\nConfiguration updated: %s\n", configPath)
	fmt.Printf("Added %d table(s).\n", len(newTables))

	return nil
}

// formatBytes formats bytes into a human-readable string.
func formatBytes(bytes uint64) string {
	const (
		KB = 1024
		MB = KB * 1024
		GB = MB * 1024
	)

	switch {
	case bytes >= GB:
		return fmt.Sprintf("%.2f GB", float64(bytes)/GB)
	case bytes >= MB:
		return fmt.Sprintf("%.2f MB", float64(bytes)/MB)
	case bytes >= KB:
		return fmt.Sprintf("%.2f KB", float64(bytes)/KB)
	default:
		return fmt.Sprintf("%d B", bytes)
	}
}
