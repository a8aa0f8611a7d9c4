package pagefetch_test

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/hugr-lab/pagefetch"
	"github.com/hugr-lab/pagefetch/query"
	"github.com/hugr-lab/pagefetch/store"
	"github.com/hugr-lab/pagefetch/transport"
)

func benchNegotiator(b *testing.B, cfg pagefetch.Config) *pagefetch.Negotiator {
	b.Helper()
	if cfg.Builder == nil {
		cfg.Builder = usersBuilder(false)
	}
	if cfg.Transport == nil {
		cfg.Transport = transport.NewMock(transport.MockConfig{})
	}
	cfg.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))

	n, err := pagefetch.New(cfg)
	if err != nil {
		b.Fatalf("New failed: %v", err)
	}
	b.Cleanup(func() { n.Close(context.Background()) })

	call, err := n.Start(context.Background())
	if err != nil {
		b.Fatalf("Start failed: %v", err)
	}
	if call != nil {
		call.Wait(context.Background())
	}
	return n
}

// BenchmarkGraphQLBuild benchmarks rendering the preset state.
func BenchmarkGraphQLBuild(b *testing.B) {
	builder := query.NewGraphQLBuilder(query.GraphQLOptions{
		Columns:                       userColumns,
		DatasetName:                   "users",
		AddLocaleIntoQuery:            true,
		Locale:                        "fr",
		ExtraQueryArguments:           []query.Argument{{Field: "userId", Value: 123}},
		KeepArgumentFieldDoubleQuotes: true,
	})
	state := *presets()

	b.ResetTimer()
	b.ReportAllocs()

	for i := 0; i < b.N; i++ {
		q, err := builder.Build(state)
		if err != nil {
			b.Fatalf("Build failed: %v", err)
		}
		_ = q
	}
}

// BenchmarkStateCodec benchmarks encoding and decoding the persisted state.
func BenchmarkStateCodec(b *testing.B) {
	mc, err := store.NewMsgpackCodec(true)
	if err != nil {
		b.Fatalf("NewMsgpackCodec failed: %v", err)
	}
	defer mc.Close()

	codecs := []struct {
		name  string
		codec store.Codec
	}{
		{"json", store.JSONCodec{}},
		{"msgpack_zstd", mc},
	}
	state := *presets()

	for _, c := range codecs {
		b.Run(c.name, func(b *testing.B) {
			b.ReportAllocs()
			var size int
			for i := 0; i < b.N; i++ {
				data, err := c.codec.Encode(state)
				if err != nil {
					b.Fatalf("Encode failed: %v", err)
				}
				if _, err := c.codec.Decode(data); err != nil {
					b.Fatalf("Decode failed: %v", err)
				}
				size = len(data)
			}
			b.ReportMetric(float64(size), "bytes")
		})
	}
}

// BenchmarkNegotiatorFetch benchmarks one action through build, fetch, apply and persist.
func BenchmarkNegotiatorFetch(b *testing.B) {
	n := benchNegotiator(b, pagefetch.Config{Presets: presets()})
	ctx := context.Background()

	b.ResetTimer()
	b.ReportAllocs()

	for i := 0; i < b.N; i++ {
		call, err := n.GoToPage(ctx, i%5+1)
		if err != nil {
			b.Fatalf("GoToPage failed: %v", err)
		}
		if _, err := call.Wait(ctx); err != nil {
			b.Fatalf("fetch failed: %v", err)
		}
	}
}

// BenchmarkConcurrentActions benchmarks overlapping actions with latest-wins application.
func BenchmarkConcurrentActions(b *testing.B) {
	n := benchNegotiator(b, pagefetch.Config{})
	ctx := context.Background()

	b.ResetTimer()
	b.ReportAllocs()

	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			call, err := n.Refresh(ctx)
			if err != nil {
				b.Errorf("Refresh failed: %v", err)
				return
			}
			call.Wait(ctx)
		}
	})
}
