package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"time"

	"github.com/obby/fs-coalescer/internal/hub"
	"github.com/obby/fs-coalescer/internal/log"
	"github.com/obby/fs-coalescer/internal/queue"
	"github.com/obby/fs-coalescer/internal/watcher"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/reflection"
	"google.golang.org/grpc/status"
)

// FileWatcherServer implements the gRPC FileWatcher service
type FileWatcherServer struct {
	watcher *watcher.FileWatcher
	hub     *hub.Hub
	logger  *slog.Logger
}

// NewFileWatcherServer creates a new gRPC server
func NewFileWatcherServer(w *watcher.FileWatcher, h *hub.Hub) *FileWatcherServer {
	return &FileWatcherServer{
		watcher: w,
		hub:     h,
		logger:  log.NewModuleLogger("server", "grpc"),
	}
}

// StartWatching implements the StartWatching RPC
func (s *FileWatcherServer) StartWatching(ctx context.Context, req *WatchRequest) (*WatchResponse, error) {
	if len(req.Paths) == 0 {
		return nil, status.Error(codes.InvalidArgument, "no paths given")
	}
	s.logger.Info("Starting watch", "paths", len(req.Paths))

	for _, path := range req.Paths {
		if err := s.watcher.AddPath(path); err != nil {
			return &WatchResponse{
				Success: false,
				Error:   err.Error(),
			}, nil
		}
	}

	return &WatchResponse{Success: true}, nil
}

// StopWatching implements the StopWatching RPC
func (s *FileWatcherServer) StopWatching(ctx context.Context, req *StopRequest) (*StopResponse, error) {
	paths := req.Paths
	if len(paths) == 0 {
		paths = s.watcher.WatchedPaths()
	}
	s.logger.Info("Stopping watch", "paths", len(paths))

	for _, path := range paths {
		if err := s.watcher.RemovePath(path); err != nil {
			return &StopResponse{
				Success: false,
				Error:   err.Error(),
			}, nil
		}
	}

	return &StopResponse{Success: true}, nil
}

// UpdatePatterns implements the UpdatePatterns RPC. Pending events the new
// patterns reject are dropped from the buffer.
func (s *FileWatcherServer) UpdatePatterns(ctx context.Context, req *PatternUpdate) (*PatternResponse, error) {
	matcher := s.watcher.Matcher()
	if matcher == nil {
		return nil, status.Error(codes.FailedPrecondition, "watcher has no pattern matcher")
	}

	if req.WatchPatterns != nil {
		if err := matcher.SetWatchPatterns(req.WatchPatterns); err != nil {
			return &PatternResponse{Error: err.Error()}, nil
		}
	}
	if req.IgnorePatterns != nil {
		if err := matcher.SetIgnorePatterns(req.IgnorePatterns); err != nil {
			return &PatternResponse{Error: err.Error()}, nil
		}
	}

	pruned := s.watcher.Buffer().Prune(matcher.Rejected())
	s.logger.Info("Patterns updated",
		"watch", len(req.WatchPatterns),
		"ignore", len(req.IgnorePatterns),
		"pruned", pruned,
	)

	return &PatternResponse{Success: true, Pruned: pruned}, nil
}

// Snapshot implements the Snapshot RPC
func (s *FileWatcherServer) Snapshot(ctx context.Context, req *SnapshotRequest) (*EventBatch, error) {
	return &EventBatch{
		Events:    s.watcher.Buffer().Snapshot(),
		Timestamp: time.Now().Unix(),
	}, nil
}

// StreamEvents implements the StreamEvents RPC
func (s *FileWatcherServer) StreamEvents(req *StreamRequest, stream grpc.ServerStreamingServer[EventBatch]) error {
	kinds, err := parseKinds(req.Kinds)
	if err != nil {
		return status.Error(codes.InvalidArgument, err.Error())
	}

	client := s.hub.NewClient()
	for _, kind := range kinds {
		client.Subscribe(kind)
	}
	s.hub.Register(client)
	defer s.hub.Unregister(client)

	s.logger.Info("Stream opened", "client_id", client.ID, "kinds", kinds)

	ctx := stream.Context()
	for {
		select {
		case msg, ok := <-client.Send:
			if !ok {
				return status.Error(codes.Unavailable, "event stream closed")
			}
			batch := &EventBatch{
				Seq:       msg.Seq,
				Events:    msg.Events,
				Timestamp: msg.SentAt.Unix(),
			}
			if err := stream.Send(batch); err != nil {
				s.logger.Warn("Error sending batch", "client_id", client.ID, "error", err)
				return err
			}
		case <-ctx.Done():
			s.logger.Info("Stream closed", "client_id", client.ID)
			return ctx.Err()
		}
	}
}

// parseKinds normalizes kind names. "*" passes through as every kind.
func parseKinds(names []string) ([]string, error) {
	kinds := make([]string, 0, len(names))
	for _, name := range names {
		if name == hub.AllTopics {
			kinds = append(kinds, name)
			continue
		}
		kind, err := queue.ParseKind(name)
		if err != nil {
			return nil, err
		}
		kinds = append(kinds, kind.String())
	}
	return kinds, nil
}

// GRPCServer owns the gRPC listener lifecycle
type GRPCServer struct {
	server *grpc.Server
	port   int
	logger *slog.Logger
}

// NewGRPCServer creates a gRPC server exposing svc
func NewGRPCServer(svc FileWatcherService, port int) *GRPCServer {
	s := grpc.NewServer()
	RegisterFileWatcherServer(s, svc)

	// Enable reflection for development
	reflection.Register(s)

	return &GRPCServer{
		server: s,
		port:   port,
		logger: log.NewModuleLogger("server", "grpc"),
	}
}

// Serve listens on the configured port and serves until Stop
func (g *GRPCServer) Serve() error {
	lis, err := net.Listen("tcp", fmt.Sprintf(":%d", g.port))
	if err != nil {
		return fmt.Errorf("failed to listen on port %d: %w", g.port, err)
	}
	return g.ServeListener(lis)
}

// ServeListener serves on lis until Stop
func (g *GRPCServer) ServeListener(lis net.Listener) error {
	g.logger.Info("gRPC server starting", "addr", lis.Addr().String())
	if err := g.server.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
		return err
	}
	return nil
}

// Stop stops the server, waiting for in-flight calls until ctx is done
func (g *GRPCServer) Stop(ctx context.Context) {
	g.logger.Info("Shutting down gRPC server")

	stopped := make(chan struct{})
	go func() {
		g.server.GracefulStop()
		close(stopped)
	}()

	select {
	case <-stopped:
	case <-ctx.Done():
		g.server.Stop()
	}
}
