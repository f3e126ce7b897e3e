package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"sort"

	"github.com/example/fluentbuddy/internal/ai"
	"github.com/example/fluentbuddy/internal/catalog"
	"github.com/example/fluentbuddy/internal/coach"
	"github.com/example/fluentbuddy/internal/config"
	"github.com/example/fluentbuddy/internal/database"
	"github.com/example/fluentbuddy/internal/events"
	"github.com/example/fluentbuddy/internal/excel"
	"github.com/example/fluentbuddy/internal/storage"
	"github.com/example/fluentbuddy/pkg/models"
	"github.com/jmoiron/sqlx"
	"github.com/spf13/cobra"
)

// Snapshot scope holding the identity of the local learner
const deviceScope = "_device"

func main() {
	rootCmd := &cobra.Command{
		Use:           "fluentbuddy",
		Short:         "FluentBuddy learning progress and spaced repetition service",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().String("level", "", "Starting CEFR level for new learners")
	rootCmd.PersistentFlags().String("learner-id", "", "Learner id to use instead of the stored one")
	rootCmd.PersistentFlags().String("db-path", "", "SQLite database path")

	rootCmd.AddCommand(newServeCommand())
	rootCmd.AddCommand(newContextCommand())
	rootCmd.AddCommand(newImportCommand())

	if err := rootCmd.Execute(); err != nil {
		log.Printf("Error: %v", err)
		os.Exit(1)
	}
}

// loadConfig reads the environment with the command's flags taking precedence
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	return config.Load(cmd.Flags())
}

// app holds what every learner's coach is built from
type app struct {
	cfg      *config.Config
	db       *sqlx.DB
	catalog  *catalog.Catalog
	bus      *events.Bus
	assessor ai.Assessor
	remote   func(learnerID string) storage.Store
	closers  []func() error
}

func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	a := &app{cfg: cfg, bus: events.NewBus()}

	db, err := database.Open(database.Config{Type: cfg.DBType, Path: cfg.DBPath, DSN: cfg.DBDSN})
	if err != nil {
		return nil, err
	}
	a.db = db
	a.closers = append(a.closers, db.Close)

	if a.catalog, err = loadCatalog(cfg.ExerciseBank); err != nil {
		a.Close()
		return nil, err
	}

	switch cfg.RemoteType {
	case "postgres":
		remoteDB, err := database.Open(database.Config{Type: "postgres", DSN: cfg.RemoteDSN})
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("failed to open remote store: %w", err)
		}
		a.closers = append(a.closers, remoteDB.Close)
		a.remote = func(learnerID string) storage.Store {
			return database.NewSnapshotRepository(remoteDB, learnerID)
		}
	case "redis":
		rcfg := storage.DefaultRedisConfig()
		rcfg.Addr = cfg.RedisAddr
		rcfg.Password = cfg.RedisPassword
		rcfg.DB = cfg.RedisDB
		base, err := storage.NewRedisStore(ctx, rcfg, "")
		if err != nil {
			a.Close()
			return nil, err
		}
		a.closers = append(a.closers, base.Close)
		a.remote = func(learnerID string) storage.Store {
			return base.ForLearner(learnerID)
		}
	}

	if cfg.OpenAIAPIKey != "" {
		chatGPT, err := ai.New(ai.Config{APIKey: cfg.OpenAIAPIKey, Model: cfg.OpenAIModel})
		if err != nil {
			log.Printf("Warning: Unable to initialize OpenAI client: %v", err)
		} else {
			a.assessor = chatGPT
		}
	}

	if cfg.NatsURL != "" {
		nc, err := events.ConnectNats(events.NatsConfig{URL: cfg.NatsURL})
		if err != nil {
			a.Close()
			return nil, err
		}
		fwd := events.NewNatsForwarder(a.bus, nc, "")
		a.closers = append(a.closers, fwd.Close)
	}

	a.bus.Subscribe(func(ev events.ProgressUpdated) {
		log.Printf("learner %s mastered %v", ev.LearnerID, ev.Completed)
	})
	return a, nil
}

func loadCatalog(bankPath string) (*catalog.Catalog, error) {
	cat := catalog.Default()
	if bankPath == "" {
		return cat, nil
	}
	ic := excel.DefaultImportConfig()
	ic.FilePath = bankPath
	result, bank, err := excel.ImportExercises(ic)
	if err != nil {
		return nil, fmt.Errorf("failed to import exercise bank: %w", err)
	}
	for _, e := range result.Errors {
		log.Printf("exercise bank %s: %s", bankPath, e)
	}
	if len(bank) == 0 {
		return nil, fmt.Errorf("exercise bank %s has no valid exercises", bankPath)
	}
	log.Printf("loaded %d exercises from %s", len(bank), bankPath)
	return cat.WithExercises(bank), nil
}

// coachFactory builds coaches backed by the local database and the optional remote store
func (a *app) coachFactory() coach.Factory {
	return func(ctx context.Context, learnerID string) (*coach.Coach, error) {
		var remote storage.Store
		if a.remote != nil {
			remote = a.remote(learnerID)
		}
		c := coach.New(coach.Options{
			LearnerID: learnerID,
			Level:     a.cfg.Level,
			Catalog:   a.catalog,
			Local:     database.NewSnapshotRepository(a.db, learnerID),
			Remote:    remote,
			Events:    a.bus,
			Assessor:  a.assessor,
			Debounce:  a.cfg.SaveDebounce,
		})
		c.Load(ctx)
		return c, nil
	}
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			log.Printf("error during shutdown: %v", err)
		}
	}
	a.closers = nil
}

func newContextCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "context",
		Short: "Print the coaching context handed to the dialogue model",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			a, err := newApp(ctx, cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			learnerID, err := coach.ResolveLearnerID(ctx, database.NewSnapshotRepository(a.db, deviceScope), cfg.LearnerID)
			if err != nil {
				return err
			}
			c, err := a.coachFactory()(ctx, learnerID)
			if err != nil {
				return err
			}
			defer c.Flush(ctx)

			fmt.Fprintf(cmd.OutOrStdout(), "Learner: %s\n\n%s", learnerID, c.SystemContext())
			return nil
		},
	}
}

func newImportCommand() *cobra.Command {
	ic := excel.DefaultImportConfig()
	cmd := &cobra.Command{
		Use:   "import-exercises <file>",
		Short: "Validate an xlsx or csv exercise bank",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ic.FilePath = args[0]
			result, bank, err := excel.ImportExercises(ic)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprint(out, result.Summary())

			perLevel := make(map[models.Level]int)
			for _, ex := range bank {
				perLevel[ex.Level]++
			}
			levels := make([]string, 0, len(perLevel))
			for l := range perLevel {
				levels = append(levels, string(l))
			}
			sort.Strings(levels)
			for _, l := range levels {
				fmt.Fprintf(out, "%s: %d\n", l, perLevel[models.Level(l)])
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&ic.SheetName, "sheet", ic.SheetName, "Sheet to read from xlsx files")
	cmd.Flags().IntVar(&ic.StartRow, "start-row", ic.StartRow, "First data row (1-based)")
	return cmd
}
