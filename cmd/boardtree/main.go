// Command boardtree loads the board hierarchy, verifies its structural
// invariants and prints the tree. Exits nonzero when a check fails, so it can
// gate deployments and migrations.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"go.uber.org/zap"

	"palaver/internal/config"
	"palaver/internal/forest"
	"palaver/internal/logger"
	"palaver/internal/store"
)

func main() {
	configPath := flag.String("config", "", "directory holding config.yaml")
	fix := flag.Bool("fix", false, "persist level corrections discovered during the build")
	demo := flag.Bool("demo", false, "run against a seeded in-memory store instead of Postgres")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	logger.Init(cfg.Logging.Level)
	defer logger.Sync()
	log := logger.Get()

	ctx := context.Background()
	var boards interface {
		FetchAllRows(ctx context.Context) ([]forest.BoardRow, error)
		ApplyUpdates(ctx context.Context, updates []forest.RowUpdate) error
	}
	if *demo {
		mem, err := store.NewMemory(cfg.Snowflake.NodeID)
		if err != nil {
			log.Fatal("memory store failed", zap.Error(err))
		}
		mem.Seed(demoRows())
		boards = mem
	} else {
		db, err := store.Open(ctx, cfg.Database.URL)
		if err != nil {
			log.Fatal("database connection failed", zap.Error(err))
		}
		defer db.Close()
		if err := store.ApplyMigrations(ctx, db); err != nil {
			log.Fatal("migrations failed", zap.Error(err))
		}
		boards = store.NewPostgresStore(db)
	}

	rows, err := boards.FetchAllRows(ctx)
	if err != nil {
		log.Fatal("load board rows failed", zap.Error(err))
	}
	f, fixes, err := forest.Build(rows)
	if err != nil {
		log.Fatal("build failed", zap.Error(err))
	}

	if len(fixes) > 0 {
		log.Warn("stored levels disagree with parent chain", zap.Int("count", len(fixes)))
		if *fix {
			updates := make([]forest.RowUpdate, 0, len(fixes))
			for _, lf := range fixes {
				b := f.Boards[lf.BoardID]
				updates = append(updates, forest.RowUpdate{
					Op:         forest.RowOpUpdate,
					BoardID:    b.ID,
					CategoryID: b.CategoryID,
					ParentID:   b.ParentID,
					Level:      b.Level,
					Order:      b.Order,
				})
			}
			if err := boards.ApplyUpdates(ctx, updates); err != nil {
				log.Fatal("persist level fixes failed", zap.Error(err))
			}
			log.Info("level fixes persisted", zap.Int("count", len(updates)))
		}
	}

	problems := verify(f)
	printTree(f)

	if len(problems) > 0 {
		for _, p := range problems {
			fmt.Fprintln(os.Stderr, "INVARIANT:", p)
		}
		os.Exit(1)
	}
}

// demoRows is a small healthy tree for -demo runs.
func demoRows() []forest.BoardRow {
	return []forest.BoardRow{
		{ID: 1, Name: "Announcements", CategoryID: 1, CategoryName: "General", CategoryOrder: 1, Order: 1},
		{ID: 2, Name: "Support", CategoryID: 1, CategoryName: "General", CategoryOrder: 1, Order: 2},
		{ID: 3, Name: "Bug reports", CategoryID: 1, CategoryName: "General", CategoryOrder: 1, ParentID: 2, Level: 1, Order: 3},
		{ID: 4, Name: "Old releases", CategoryID: 2, CategoryName: "Archive", CategoryOrder: 2, Order: 4},
	}
}

// verify checks the structural invariants: root boards sit at level zero,
// every child is one level below its parent in the same category, and order
// values are globally unique.
func verify(f *forest.Forest) []string {
	var problems []string
	orders := make(map[int]int64, len(f.Boards))
	for id, b := range f.Boards {
		if prev, dup := orders[b.Order]; dup {
			problems = append(problems, fmt.Sprintf("boards %d and %d share order %d", prev, id, b.Order))
		}
		orders[b.Order] = id
		if b.ParentID == 0 {
			if b.Level != 0 {
				problems = append(problems, fmt.Sprintf("root board %d has level %d", id, b.Level))
			}
			continue
		}
		parent, ok := f.Boards[b.ParentID]
		if !ok {
			problems = append(problems, fmt.Sprintf("board %d references missing parent %d", id, b.ParentID))
			continue
		}
		if b.Level != parent.Level+1 {
			problems = append(problems, fmt.Sprintf("board %d has level %d under parent at level %d", id, b.Level, parent.Level))
		}
		if b.CategoryID != parent.CategoryID {
			problems = append(problems, fmt.Sprintf("board %d sits in category %d but its parent is in %d", id, b.CategoryID, parent.CategoryID))
		}
	}
	return problems
}

func printTree(f *forest.Forest) {
	for _, catID := range f.CategoryOrder {
		cat := f.Categories[catID]
		fmt.Printf("[%d] %s\n", cat.ID, cat.Name)
		for _, id := range cat.BoardIDs {
			printBoard(f, id, 1)
		}
	}
}

func printBoard(f *forest.Forest, id int64, depth int) {
	b := f.Boards[id]
	for i := 0; i < depth; i++ {
		fmt.Print("  ")
	}
	fmt.Printf("%d. %s (id %d)\n", b.Order, b.Name, b.ID)
	for _, child := range f.ChildrenOf(id) {
		printBoard(f, child, depth+1)
	}
}
