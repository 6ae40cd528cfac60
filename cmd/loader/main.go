// The loader applies database migrations and ingests a curated graph dataset
// (entities, edges, timeline events) into Postgres. With -dry-run it parses
// and validates the dataset against an in-memory store without touching the
// database.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/cleargate-io/cleargate/internal/util"
	"github.com/cleargate-io/cleargate/pkg/common"
	"github.com/cleargate-io/cleargate/pkg/logger"
	"github.com/cleargate-io/cleargate/pkg/logger/console"
	"github.com/cleargate-io/cleargate/pkg/store"
	"github.com/cleargate-io/cleargate/pkg/store/memory"
	pgstore "github.com/cleargate-io/cleargate/pkg/store/pgx"

	"github.com/golang-migrate/migrate/v4"
	"github.com/jackc/pgx/v5/pgxpool"
	gonanoid "github.com/matoous/go-nanoid/v2"

	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	_ "github.com/lib/pq"
)

type dataset struct {
	Entities []common.Entity        `json:"entities"`
	Edges    []common.Edge          `json:"edges"`
	Events   []common.TimelineEvent `json:"events"`
}

func main() {
	dataPath := flag.String("data", "data/graph.json", "path to the graph dataset")
	migrationsPath := flag.String("migrations", "file://migrations", "migration source URL")
	dryRun := flag.Bool("dry-run", false, "validate the dataset without writing to the database")
	flag.Parse()

	util.LoadEnv()

	debug := util.GetEnvBool("DEBUG", false)
	consoleLogger := console.NewConsoleLogger(console.ConsoleLoggerParams{
		Debug: debug,
	})
	logger.Init(consoleLogger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	ds, err := readDataset(*dataPath)
	if err != nil {
		logger.Fatal("Failed to read dataset", "path", *dataPath, "err", err)
	}
	validateDataset(ds)

	var writer store.GraphWriter
	if *dryRun {
		logger.Info("Dry run, loading into memory store")
		writer = memory.NewStore()
	} else {
		m, err := migrate.New(*migrationsPath, util.GetEnv("DATABASE_URL"))
		if err != nil {
			logger.Fatal("Failed to init migrations", "err", err)
		}
		if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
			logger.Fatal("Failed to apply migrations", "err", err)
		}

		conn, err := pgxpool.New(ctx, util.GetEnv("DATABASE_URL"))
		if err != nil {
			logger.Fatal("Failed to connect to database", "err", err)
		}
		defer conn.Close()
		writer = pgstore.NewStore(conn)
	}

	if err := writer.SaveEntities(ctx, ds.Entities); err != nil {
		logger.Fatal("Failed to save entities", "err", err)
	}
	if err := writer.SaveEdges(ctx, ds.Edges); err != nil {
		logger.Fatal("Failed to save edges", "err", err)
	}
	if err := writer.SaveEvents(ctx, ds.Events); err != nil {
		logger.Fatal("Failed to save events", "err", err)
	}

	logger.Info("Dataset loaded",
		"entities", len(ds.Entities),
		"edges", len(ds.Edges),
		"events", len(ds.Events),
	)
}

func readDataset(path string) (*dataset, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	ds := new(dataset)
	if err := json.Unmarshal(raw, ds); err != nil {
		return nil, err
	}

	// Curated files may omit edge and event ids.
	for i := range ds.Edges {
		if ds.Edges[i].ID == "" {
			id, err := gonanoid.New()
			if err != nil {
				return nil, err
			}
			ds.Edges[i].ID = id
		}
	}
	for i := range ds.Events {
		if ds.Events[i].ID == "" {
			id, err := gonanoid.New()
			if err != nil {
				return nil, err
			}
			ds.Events[i].ID = id
		}
	}

	return ds, nil
}

// validateDataset reports referential problems. Dangling references load
// anyway against the memory store but fail the Postgres foreign keys, so
// surfacing them here makes dry runs useful.
func validateDataset(ds *dataset) {
	ids := make(map[string]struct{}, len(ds.Entities))
	for _, ent := range ds.Entities {
		if ent.ID == "" || ent.Name == "" {
			logger.Warn("Entity missing id or name", "id", ent.ID, "name", ent.Name)
			continue
		}
		if _, dup := ids[ent.ID]; dup {
			logger.Warn("Duplicate entity id", "id", ent.ID)
		}
		ids[ent.ID] = struct{}{}
	}

	for _, edge := range ds.Edges {
		if _, ok := ids[edge.FromID]; !ok {
			logger.Warn("Edge references unknown source", "edge", edge.ID, "from", edge.FromID)
		}
		if _, ok := ids[edge.ToID]; !ok {
			logger.Warn("Edge references unknown target", "edge", edge.ID, "to", edge.ToID)
		}
		if edge.Type == common.EdgeOwns && edge.Percentage == nil {
			logger.Warn("Ownership edge missing percentage", "edge", edge.ID)
		}
	}

	for _, ev := range ds.Events {
		if _, ok := ids[ev.EntityID]; !ok {
			logger.Warn("Event references unknown entity", "event", ev.ID, "entity", ev.EntityID)
		}
	}
}
