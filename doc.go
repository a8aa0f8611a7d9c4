// Package pagefetch mediates between a data grid and a remote query service.
//
// A grid holds filter, sort and pagination state. The package turns that
// state into a backend query, fetches one page asynchronously, applies the
// result with latest-wins discipline, persists the grid state to a key/value
// store and reports the fetch lifecycle on a status indicator.
//
// # Quick Start
//
//	cols := grid.Columns{
//	    {ID: "name"},
//	    {ID: "gender"},
//	    {ID: "company"},
//	}
//
//	n, err := pagefetch.New(pagefetch.Config{
//	    Builder: query.NewGraphQLBuilder(query.GraphQLOptions{
//	        Columns:     cols,
//	        DatasetName: "users",
//	    }),
//	    Transport:     tr, // e.g. transport.NewHTTP(...)
//	    ExecuteOnInit: true,
//	    Presets: &grid.State{
//	        Filters: []grid.Filter{{ColumnID: "gender", Operator: grid.OpEqual, SearchTerms: []string{"male"}}},
//	    },
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer n.Close(context.Background())
//
//	call, _ := n.Start(ctx)
//	call.Wait(ctx)
//	fmt.Println(n.View().TotalCount)
//
//	call, _ = n.GoToNextPage(ctx)
//
// # Architecture
//
// The package is built from small components, each usable on its own:
//
//   - query.Builder: renders grid.State as a GraphQL document or SQL statement
//   - transport.Transport: sends a query and decodes one page
//   - Adapter: runs a fetch through the PreProcess, Process and PostProcess stages
//   - Synchronizer: applies results atomically and persists state in the background
//   - StatusReporter: projects the fetch lifecycle onto a status indicator
//   - Negotiator: the state machine tying them together
//
// # Latest Wins
//
// Every dispatched fetch gets a sequence number. Fetches are never canceled
// when superseded, but only the result of the latest one is applied; older
// results are dropped and counted.
//
// # Persistence
//
// The grid state is written to a store.Store on every change. Writes are
// fire-and-forget: failures are logged at Warn level and counted, and never
// reach the caller. Close flushes the pending write.
//
// # Logging
//
// The package logs through the Config.Logger (slog.Default() if nil).
// Set Config.LogLevel to get a text logger at a given level.
package pagefetch
