package main

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/cors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/ascent-prep/ascent/internal/assessment"
	"github.com/ascent-prep/ascent/internal/conceptgraph"
	"github.com/ascent-prep/ascent/internal/engine"
	"github.com/ascent-prep/ascent/internal/events"
	"github.com/ascent-prep/ascent/internal/handler"
	appI18n "github.com/ascent-prep/ascent/internal/i18n"
	"github.com/ascent-prep/ascent/internal/model"
	"github.com/ascent-prep/ascent/internal/store"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "ascent",
		Short: "Adaptive bar exam preparation engine",
	}

	serve := serveCmd()
	root.AddCommand(serve, seedCmd(), exportCmd())

	// Make "serve" the default when no subcommand is given.
	root.RunE = serve.RunE

	// Register serve flags on root so bare `ascent --addr ...` still works.
	root.Flags().AddFlagSet(serve.Flags())

	return root
}

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP assessment server",
		RunE:  runServe,
	}
	f := cmd.Flags()
	f.StringP("addr", "a", ":8080", "HTTP listen address")
	f.String("db", "ascent.db", "SQLite database path")
	f.StringSliceP("curriculum", "c", nil, "Paths to curriculum JSON files to import on startup (repeatable)")
	f.StringP("lang", "l", "en", "Default response language (en, es)")
	f.Int("topic-cap", 3, "Max items one topic may contribute to a session (0 = unlimited)")
	f.StringSlice("cors-origins", []string{"*"}, "Allowed CORS origins")
	f.String("log-level", "info", "Log level (debug, info, warn, error)")
	f.String("log-format", "text", "Log format (text, json)")
	return cmd
}

func seedCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Import curriculum files without starting the server",
		RunE:  runSeed,
	}
	f := cmd.Flags()
	f.String("db", "ascent.db", "SQLite database path")
	f.StringSliceP("curriculum", "c", nil, "Paths to curriculum JSON files (repeatable, required)")
	f.String("log-level", "info", "Log level (debug, info, warn, error)")
	f.String("log-format", "text", "Log format (text, json)")

	_ = cmd.MarkFlagRequired("curriculum")

	return cmd
}

func exportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export session results and reports as JSON",
		RunE:  runExport,
	}
	f := cmd.Flags()
	f.String("db", "ascent.db", "SQLite database path")
	f.StringP("jurisdiction", "j", "", "Jurisdiction code to export (required)")
	f.StringP("output", "o", "-", "Output file path (- for stdout)")
	f.String("log-level", "info", "Log level (debug, info, warn, error)")
	f.String("log-format", "text", "Log format (text, json)")

	_ = cmd.MarkFlagRequired("jurisdiction")

	return cmd
}

func setupLogging(cmd *cobra.Command) {
	v := viperForCmd(cmd)

	var logLevel slog.Level
	switch strings.ToLower(v.GetString("log-level")) {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}
	handlerOpts := &slog.HandlerOptions{Level: logLevel}
	var logHandler slog.Handler
	switch strings.ToLower(v.GetString("log-format")) {
	case "json":
		logHandler = slog.NewJSONHandler(os.Stderr, handlerOpts)
	default:
		logHandler = slog.NewTextHandler(os.Stderr, handlerOpts)
	}
	slog.SetDefault(slog.New(logHandler))
}

// viperForCmd binds a command's flags and environment to a fresh viper instance.
func viperForCmd(cmd *cobra.Command) *viper.Viper {
	v := viper.New()
	_ = v.BindPFlags(cmd.Flags())

	v.SetEnvPrefix("ASCENT")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetConfigName("ascent")
	v.AddConfigPath(".")
	v.AddConfigPath("$HOME/.config/ascent")
	v.AddConfigPath("/etc/ascent")
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			slog.Warn("error reading config file", "error", err)
		}
	} else {
		slog.Info("loaded config file", "path", v.ConfigFileUsed())
	}

	return v
}

func runServe(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	db, err := store.New(v.GetString("db"))
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	if err := loadCurriculum(db, v.GetStringSlice("curriculum")); err != nil {
		return fmt.Errorf("load curriculum: %w", err)
	}

	lang := v.GetString("lang")
	if err := appI18n.Init(lang); err != nil {
		return fmt.Errorf("init i18n: %w", err)
	}

	broker := events.NewBroker()
	eng := engine.WithLogging(engine.New(db, db, broker, engine.Config{
		Selector: assessment.SelectorConfig{MaxPerTopic: v.GetInt("topic-cap")},
	}), slog.Default())
	h := handler.New(eng, db, broker)

	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(appI18n.Middleware(lang))
	h.Routes(r)

	c := cors.New(cors.Options{
		AllowedOrigins:   v.GetStringSlice("cors-origins"),
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Content-Type", "Accept-Language"},
		AllowCredentials: true,
	})

	itemCount, err := db.ItemCount()
	if err != nil {
		return fmt.Errorf("count items: %w", err)
	}
	if itemCount == 0 {
		slog.Warn("item bank is empty, sessions cannot start until a curriculum is imported")
	}
	studentCount, err := db.StudentCount()
	if err != nil {
		return fmt.Errorf("count students: %w", err)
	}

	addr := v.GetString("addr")
	slog.Info("starting server",
		"addr", addr,
		"db", v.GetString("db"),
		"lang", lang,
		"topic_cap", v.GetInt("topic-cap"),
		"items", itemCount,
		"students", studentCount,
	)
	return http.ListenAndServe(addr, c.Handler(r))
}

func runSeed(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	db, err := store.New(v.GetString("db"))
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	return loadCurriculum(db, v.GetStringSlice("curriculum"))
}

func runExport(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	db, err := store.New(v.GetString("db"))
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	export, err := db.ExportResults(v.GetString("jurisdiction"))
	if err != nil {
		return fmt.Errorf("export results: %w", err)
	}

	data, err := json.MarshalIndent(export, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal JSON: %w", err)
	}

	outPath := v.GetString("output")
	var w io.Writer
	if outPath == "" || outPath == "-" {
		w = os.Stdout
	} else {
		f, err := os.Create(outPath)
		if err != nil {
			return fmt.Errorf("create output file: %w", err)
		}
		defer f.Close()
		w = f
	}

	_, err = w.Write(data)
	if err != nil {
		return fmt.Errorf("write output: %w", err)
	}
	// Ensure trailing newline.
	_, _ = fmt.Fprintln(w)

	return nil
}

// loadCurriculum imports each curriculum file once, tracked by content hash.
// A file that changed since its import is skipped with a warning rather than
// re-imported, because items already administered in stored sessions must
// keep their calibration.
func loadCurriculum(db *store.Store, paths []string) error {
	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read %s: %w", path, err)
		}

		hash := sha256sum(data)
		storedHash, err := db.GetImportedFileHash(path)
		if err != nil {
			return fmt.Errorf("check import status for %s: %w", path, err)
		}

		if storedHash == hash {
			slog.Info("curriculum file unchanged, skipping", "path", path)
			continue
		}
		if storedHash != "" {
			slog.Warn("curriculum file changed since last import, skipping to preserve existing sessions",
				"path", path)
			continue
		}

		var cur model.CurriculumImport
		if err := json.Unmarshal(data, &cur); err != nil {
			return fmt.Errorf("parse %s: %w", path, err)
		}

		concepts, items, err := importCurriculum(db, cur)
		if err != nil {
			return fmt.Errorf("import %s: %w", path, err)
		}

		if err := db.SetImportedFileHash(path, hash); err != nil {
			return fmt.Errorf("record import for %s: %w", path, err)
		}
		slog.Info("imported curriculum", "path", path, "concepts", concepts, "items", items)
	}

	return nil
}

// importCurriculum writes one curriculum file into the store: the
// jurisdiction, its concepts, their prerequisite edges, and the item bank.
// Concept slugs already present in the jurisdiction are reused, so several
// files may extend the same jurisdiction.
func importCurriculum(db *store.Store, cur model.CurriculumImport) (concepts, items int, err error) {
	if cur.Jurisdiction.Code == "" {
		return 0, 0, fmt.Errorf("curriculum has no jurisdiction code")
	}
	if err := validateImportGraph(cur.Concepts); err != nil {
		return 0, 0, err
	}

	jur, err := db.GetJurisdictionByCode(cur.Jurisdiction.Code)
	if err != nil {
		return 0, 0, err
	}
	if jur == nil {
		created, err := db.InsertJurisdiction(model.Jurisdiction{
			Code:         cur.Jurisdiction.Code,
			Name:         cur.Jurisdiction.Name,
			PassingScore: cur.Jurisdiction.PassingScore,
		})
		if err != nil {
			return 0, 0, fmt.Errorf("insert jurisdiction %s: %w", cur.Jurisdiction.Code, err)
		}
		jur = &created
	}

	// Insert every concept before any edge so prerequisites may reference
	// slugs declared later in the file.
	idBySlug := make(map[string]string, len(cur.Concepts))
	for _, ci := range cur.Concepts {
		existing, err := db.GetConceptBySlug(jur.ID, ci.Slug)
		if err != nil {
			return 0, 0, err
		}
		if existing != nil {
			idBySlug[ci.Slug] = existing.ID
			continue
		}
		c, err := db.InsertConcept(model.Concept{
			JurisdictionID:   jur.ID,
			Slug:             ci.Slug,
			Name:             ci.Name,
			Category:         ci.Category,
			Difficulty:       ci.Difficulty,
			EstimatedMinutes: ci.EstimatedMinutes,
		})
		if err != nil {
			return 0, 0, fmt.Errorf("insert concept %s: %w", ci.Slug, err)
		}
		idBySlug[ci.Slug] = c.ID
		concepts++
	}

	for _, ci := range cur.Concepts {
		for _, prereq := range ci.Prerequisites {
			prereqID, err := resolveSlug(db, jur.ID, idBySlug, prereq)
			if err != nil {
				return 0, 0, fmt.Errorf("concept %s: prerequisite %s: %w", ci.Slug, prereq, err)
			}
			if _, err := db.AddPrerequisite(idBySlug[ci.Slug], prereqID); err != nil {
				return 0, 0, fmt.Errorf("add prerequisite %s -> %s: %w", prereq, ci.Slug, err)
			}
		}
	}

	for i, ii := range cur.Items {
		item, err := buildItem(db, jur.ID, ii, idBySlug)
		if err != nil {
			return 0, 0, fmt.Errorf("item %d: %w", i+1, err)
		}
		if _, err := db.InsertItem(item); err != nil {
			return 0, 0, fmt.Errorf("insert item %d: %w", i+1, err)
		}
		items++
	}

	return concepts, items, nil
}

// validateImportGraph rejects a file whose own prerequisite declarations form
// a cycle, before anything is written. Edges reaching concepts outside the
// file are checked later against the stored graph.
func validateImportGraph(concepts []model.ConceptImport) error {
	slugs := make([]string, 0, len(concepts))
	seen := make(map[string]bool, len(concepts))
	for _, ci := range concepts {
		if ci.Slug == "" {
			return fmt.Errorf("concept %q has no slug", ci.Name)
		}
		if seen[ci.Slug] {
			return fmt.Errorf("duplicate concept slug %s", ci.Slug)
		}
		seen[ci.Slug] = true
		slugs = append(slugs, ci.Slug)
	}

	var edges []model.ConceptEdge
	for _, ci := range concepts {
		for _, prereq := range ci.Prerequisites {
			if seen[prereq] {
				edges = append(edges, model.ConceptEdge{ConceptID: ci.Slug, PrerequisiteID: prereq})
			}
		}
	}

	if _, err := conceptgraph.New(slugs, edges).TopologicalSort(); err != nil {
		return err
	}
	return nil
}

// resolveSlug maps a concept slug to its id, falling back to the store for
// slugs imported by an earlier file of the same jurisdiction.
func resolveSlug(db *store.Store, jurisdictionID string, idBySlug map[string]string, slug string) (string, error) {
	if id, ok := idBySlug[slug]; ok {
		return id, nil
	}
	c, err := db.GetConceptBySlug(jurisdictionID, slug)
	if err != nil {
		return "", err
	}
	if c == nil {
		return "", fmt.Errorf("unknown concept slug %s", slug)
	}
	idBySlug[slug] = c.ID
	return c.ID, nil
}

func buildItem(db *store.Store, jurisdictionID string, ii model.ItemImport, idBySlug map[string]string) (model.Item, error) {
	if len(ii.Options) != 4 {
		return model.Item{}, fmt.Errorf("expected 4 options, got %d", len(ii.Options))
	}
	if !model.ValidOption(ii.CorrectOption) {
		return model.Item{}, fmt.Errorf("correct option must be A, B, C or D, got %q", ii.CorrectOption)
	}
	if ii.Discrimination <= 0 {
		return model.Item{}, fmt.Errorf("discrimination must be positive, got %g", ii.Discrimination)
	}
	if ii.Guessing < 0 || ii.Guessing >= 1 {
		return model.Item{}, fmt.Errorf("guessing must be in [0, 1), got %g", ii.Guessing)
	}

	it := model.Item{
		JurisdictionID: jurisdictionID,
		Stem:           ii.Stem,
		CorrectOption:  ii.CorrectOption,
		Discrimination: ii.Discrimination,
		Difficulty:     ii.Difficulty,
		Guessing:       ii.Guessing,
		Topic:          ii.Topic,
		Citations:      ii.Citations,
	}
	copy(it.Options[:], ii.Options)

	for _, slug := range ii.Concepts {
		id, err := resolveSlug(db, jurisdictionID, idBySlug, slug)
		if err != nil {
			return model.Item{}, err
		}
		it.ConceptIDs = append(it.ConceptIDs, id)
	}
	return it, nil
}

func sha256sum(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}
