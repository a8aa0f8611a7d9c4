package mockbackend

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
)

// shutdownTimeout bounds the graceful HTTP shutdown.
const shutdownTimeout = 5 * time.Second

// Serve serves GraphQL on httpLis and Flight on flightLis until ctx is done
// or one of the servers fails. Either listener may be nil to skip that endpoint.
// Returns nil after a clean shutdown.
func (b *Backend) Serve(ctx context.Context, httpLis, flightLis net.Listener) error {
	eg, egCtx := errgroup.WithContext(ctx)

	if httpLis != nil {
		srv := &http.Server{Handler: b.Handler(), ReadHeaderTimeout: 10 * time.Second}
		eg.Go(func() error {
			b.logger.Info("Mock GraphQL endpoint listening", "address", httpLis.Addr().String())
			if err := srv.Serve(httpLis); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
		eg.Go(func() error {
			<-egCtx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	if flightLis != nil {
		grpcServer := grpc.NewServer(b.ServerOptions()...)
		b.RegisterFlight(grpcServer)
		eg.Go(func() error {
			b.logger.Info("Mock Flight server listening", "address", flightLis.Addr().String())
			if err := grpcServer.Serve(flightLis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
				return err
			}
			return nil
		})
		eg.Go(func() error {
			<-egCtx.Done()
			grpcServer.GracefulStop()
			return nil
		})
	}

	return eg.Wait()
}
