// Command pagefetch-demo drives a users grid against a mock backend.
//
// Without -config the demo serves its own backend (GraphQL over HTTP and
// Arrow Flight on localhost) answering every query with an empty page of 100
// users after 500ms. It starts from presets, walks through a few grid actions
// and prints the query, status and grid state after each of them.
//
// With -config the negotiator is built from a settings file instead; the file
// must declare the name, gender and company columns.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"slices"
	"syscall"
	"time"

	"github.com/hugr-lab/pagefetch"
	"github.com/hugr-lab/pagefetch/auth"
	"github.com/hugr-lab/pagefetch/grid"
	"github.com/hugr-lab/pagefetch/mockbackend"
	"github.com/hugr-lab/pagefetch/query"
	"github.com/hugr-lab/pagefetch/settings"
	"github.com/hugr-lab/pagefetch/store"
	"github.com/hugr-lab/pagefetch/transport"
)

const (
	datasetName     = "users"
	defaultPageSize = 20
	demoToken       = "demo-token"
)

var pageSizes = []int{10, 15, 20, 25, 30, 40, 50, 75, 100}

var columns = grid.Columns{
	{ID: "name", Field: "name", Name: "Name", Type: grid.FieldTypeString},
	{ID: "gender", Field: "gender", Name: "Gender"},
	{ID: "company", Field: "company", Name: "Company"},
	{ID: "billing.address.street", Field: "billing.address.street", Name: "Billing Address Street"},
	{ID: "billing.address.zip", Field: "billing.address.zip", Name: "Billing Address Zip", Type: grid.FieldTypeNumber},
}

func presets() *grid.State {
	return &grid.State{
		Filters: []grid.Filter{
			{ColumnID: "gender", SearchTerms: []string{"male"}, Operator: grid.OpEqual},
			{ColumnID: "name", SearchTerms: []string{"John Doe"}, Operator: grid.OpContains},
			{ColumnID: "company", SearchTerms: []string{"xyz"}, Operator: grid.OpIn},
		},
		Sorters: []grid.Sorter{
			{ColumnID: "name", Direction: grid.SortAsc},
			{ColumnID: "company", Direction: grid.SortDesc},
		},
		Pagination: &grid.Pagination{PageNumber: 2, PageSize: defaultPageSize},
	}
}

func main() {
	var (
		configPath = flag.String("config", "", "settings file; without it the demo serves its own mock backend")
		via        = flag.String("transport", "http", "transport to the built-in backend: http or flight")
		withCursor = flag.Bool("cursor", false, "use cursor pagination")
		stateDir   = flag.String("state", "", "directory persisting the grid state between runs")
		pageSize   = flag.Int("page-size", 50, "page size selected during the demo")
		verbose    = flag.Bool("v", false, "debug logging")
	)
	flag.Parse()

	if !slices.Contains(pageSizes, *pageSize) {
		log.Fatalf("page size must be one of %v", pageSizes)
	}

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var (
		cfg     pagefetch.Config
		cleanup func()
		err     error
	)
	if *configPath != "" {
		cfg, cleanup, err = configFromSettings(ctx, *configPath, logger)
	} else {
		cfg, cleanup, err = builtinConfig(ctx, *via, *withCursor, *stateDir, logger)
	}
	if err != nil {
		log.Fatalf("Failed to configure negotiator: %v", err)
	}
	defer cleanup()

	cfg.Presets = presets()
	cfg.ExecuteOnInit = true

	n, err := pagefetch.New(cfg)
	if err != nil {
		log.Fatalf("Failed to create negotiator: %v", err)
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := n.Close(closeCtx); err != nil {
			logger.Warn("Negotiator close failed", "error", err)
		}
	}()

	n.Subscribe(func(u pagefetch.StatusUpdate) {
		fmt.Printf("   status: %-14s (%s)\n", u.Display.Text, u.Display.Class)
	})

	if err := run(ctx, n, *pageSize); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatalf("Demo failed: %v", err)
	}
}

// step is one grid action of the demo.
type step struct {
	title  string
	action func(ctx context.Context) (*pagefetch.Call, error)
}

func run(ctx context.Context, n *pagefetch.Negotiator, pageSize int) error {
	steps := []step{
		{"initial load from presets", n.Start},
		{"next page", n.GoToNextPage},
		{"filter companies starting with acme", func(ctx context.Context) (*pagefetch.Call, error) {
			return n.SetFilters(ctx, grid.Filter{ColumnID: "company", SearchTerms: []string{"acme*"}})
		}},
		{"sort by zip descending", func(ctx context.Context) (*pagefetch.Call, error) {
			return n.SetSorters(ctx, grid.Sorter{ColumnID: "billing.address.zip", Direction: grid.SortDesc})
		}},
		{fmt.Sprintf("page size %d", pageSize), func(ctx context.Context) (*pagefetch.Call, error) {
			return n.SetPageSize(ctx, pageSize)
		}},
		{"rapid paging, only the last request is applied", func(ctx context.Context) (*pagefetch.Call, error) {
			if _, err := n.GoToFirstPage(ctx); err != nil {
				return nil, err
			}
			return n.GoToNextPage(ctx)
		}},
		{"last page", n.GoToLastPage},
		{"clear all filters and sorts", n.ClearAllFiltersAndSorts},
		{"reset grid", n.Reset},
	}

	for i, s := range steps {
		fmt.Printf("\n== %d. %s\n", i+1, s.title)
		call, err := s.action(ctx)
		if err != nil {
			if errors.Is(err, pagefetch.ErrPageOutOfRange) || errors.Is(err, pagefetch.ErrCursorPagination) {
				fmt.Printf("   skipped: %v\n", err)
				continue
			}
			return err
		}
		if call == nil {
			continue
		}
		if _, err := call.Wait(ctx); err != nil {
			fmt.Printf("   fetch failed: %v\n", err)
		}
		printView(n)
	}
	return nil
}

func printView(n *pagefetch.Negotiator) {
	v := n.View()
	st := n.CurrentState()
	page := st.Page(defaultPageSize)

	fmt.Printf("   query:  %s\n", n.CurrentQuery().Text)
	fmt.Printf("   result: %d nodes of %d, page %d (%d per page), next page: %v\n",
		len(v.Nodes), v.TotalCount, page.PageNumber, page.PageSize, v.PageInfo.HasNextPage)
	if v.Statistics != nil {
		fmt.Printf("   took:   %v\n", v.Statistics.ExecutionTime.Round(time.Millisecond))
	}
	if data, err := st.Marshal(); err == nil {
		fmt.Printf("   state:  %s\n", data)
	}
}

func configFromSettings(ctx context.Context, path string, logger *slog.Logger) (pagefetch.Config, func(), error) {
	s, err := settings.Load(path)
	if err != nil {
		return pagefetch.Config{}, nil, err
	}
	c, err := s.Build(ctx, logger)
	if err != nil {
		return pagefetch.Config{}, nil, err
	}
	return c.Config, func() { c.Close() }, nil
}

// builtinConfig serves the mock backend on localhost and wires a negotiator to it.
func builtinConfig(ctx context.Context, via string, withCursor bool, stateDir string, logger *slog.Logger) (pagefetch.Config, func(), error) {
	backend := mockbackend.New(mockbackend.Config{
		Delay: transport.DefaultMockDelay,
		Auth: auth.BearerAuth(func(token string) (string, error) {
			if token != demoToken {
				return "", auth.ErrUnauthenticated
			}
			return "demo", nil
		}),
		Logger: logger,
	})

	httpLis, err := net.Listen("tcp", "localhost:0")
	if err != nil {
		return pagefetch.Config{}, nil, err
	}
	flightLis, err := net.Listen("tcp", "localhost:0")
	if err != nil {
		httpLis.Close()
		return pagefetch.Config{}, nil, err
	}

	serveCtx, cancel := context.WithCancel(ctx)
	served := make(chan error, 1)
	go func() { served <- backend.Serve(serveCtx, httpLis, flightLis) }()

	var closers []func()
	cleanup := func() {
		for _, c := range slices.Backward(closers) {
			c()
		}
		cancel()
		if err := <-served; err != nil {
			logger.Warn("Mock backend stopped with error", "error", err)
		}
	}

	var tr transport.Transport
	switch via {
	case "http":
		tr, err = transport.NewHTTP(transport.HTTPConfig{
			Endpoint: "http://" + httpLis.Addr().String() + mockbackend.GraphQLPath,
			Token:    auth.StaticToken(demoToken),
			Logger:   logger,
		})
	case "flight":
		var ft *transport.FlightTransport
		ft, err = transport.NewFlight(transport.FlightConfig{
			Address: flightLis.Addr().String(),
			Token:   auth.StaticToken(demoToken),
			Logger:  logger,
		})
		if err == nil {
			closers = append(closers, func() { ft.Close() })
			tr = ft
		}
	default:
		err = fmt.Errorf("unknown transport %q", via)
	}
	if err != nil {
		cleanup()
		return pagefetch.Config{}, nil, err
	}

	var st store.Store = store.NewMemory()
	if stateDir != "" {
		fs, err := store.NewFile(stateDir)
		if err != nil {
			cleanup()
			return pagefetch.Config{}, nil, err
		}
		st = fs
	}

	builder := query.NewGraphQLBuilder(query.GraphQLOptions{
		Columns:                       columns,
		DatasetName:                   datasetName,
		IsWithCursor:                  withCursor,
		AddLocaleIntoQuery:            true,
		Locale:                        "fr",
		ExtraQueryArguments:           []query.Argument{{Field: "userId", Value: 123}},
		KeepArgumentFieldDoubleQuotes: true,
		DefaultPageSize:               defaultPageSize,
	})

	return pagefetch.Config{
		Builder:   builder,
		Transport: tr,
		Store:     st,
		Logger:    logger,
	}, cleanup, nil
}
