package server

import (
	"context"

	"github.com/obby/fs-coalescer/internal/queue"
	"google.golang.org/grpc"
)

const (
	serviceName = "obby.filewatcher.FileWatcher"

	startWatchingMethod  = "/" + serviceName + "/StartWatching"
	stopWatchingMethod   = "/" + serviceName + "/StopWatching"
	updatePatternsMethod = "/" + serviceName + "/UpdatePatterns"
	snapshotMethod       = "/" + serviceName + "/Snapshot"
	streamEventsMethod   = "/" + serviceName + "/StreamEvents"
)

type WatchRequest struct {
	Paths []string `json:"paths"`
}

type WatchResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

type StopRequest struct {
	Paths []string `json:"paths"`
}

type StopResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// PatternUpdate replaces the watch and ignore pattern sets. A nil list
// leaves its set unchanged; an empty list clears it.
type PatternUpdate struct {
	WatchPatterns  []string `json:"watch_patterns,omitempty"`
	IgnorePatterns []string `json:"ignore_patterns,omitempty"`
}

type PatternResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
	// Pruned counts pending events dropped because the new patterns reject them
	Pruned int `json:"pruned"`
}

type SnapshotRequest struct{}

// StreamRequest selects event kinds by name. Empty means every kind.
type StreamRequest struct {
	Kinds []string `json:"kinds,omitempty"`
}

// EventBatch is a group of normalized events. Seq is zero for snapshots.
type EventBatch struct {
	Seq       uint64        `json:"seq"`
	Events    []queue.Event `json:"events"`
	Timestamp int64         `json:"timestamp"`
}

// FileWatcherService is the server API of the FileWatcher service
type FileWatcherService interface {
	StartWatching(context.Context, *WatchRequest) (*WatchResponse, error)
	StopWatching(context.Context, *StopRequest) (*StopResponse, error)
	UpdatePatterns(context.Context, *PatternUpdate) (*PatternResponse, error)
	Snapshot(context.Context, *SnapshotRequest) (*EventBatch, error)
	StreamEvents(*StreamRequest, grpc.ServerStreamingServer[EventBatch]) error
}

// RegisterFileWatcherServer registers srv with s
func RegisterFileWatcherServer(s grpc.ServiceRegistrar, srv FileWatcherService) {
	s.RegisterService(&fileWatcherServiceDesc, srv)
}

func unaryHandler[Req, Res any](method string, call func(FileWatcherService, context.Context, *Req) (*Res, error)) grpc.MethodHandler {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(Req)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(FileWatcherService), ctx, in)
		}
		info := &grpc.UnaryServerInfo{
			Server:     srv,
			FullMethod: method,
		}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(FileWatcherService), ctx, req.(*Req))
		}
		return interceptor(ctx, in, info, handler)
	}
}

func streamEventsHandler(srv any, stream grpc.ServerStream) error {
	in := new(StreamRequest)
	if err := stream.RecvMsg(in); err != nil {
		return err
	}
	return srv.(FileWatcherService).StreamEvents(in, &grpc.GenericServerStream[StreamRequest, EventBatch]{ServerStream: stream})
}

var fileWatcherServiceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*FileWatcherService)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "StartWatching",
			Handler:    unaryHandler(startWatchingMethod, FileWatcherService.StartWatching),
		},
		{
			MethodName: "StopWatching",
			Handler:    unaryHandler(stopWatchingMethod, FileWatcherService.StopWatching),
		},
		{
			MethodName: "UpdatePatterns",
			Handler:    unaryHandler(updatePatternsMethod, FileWatcherService.UpdatePatterns),
		},
		{
			MethodName: "Snapshot",
			Handler:    unaryHandler(snapshotMethod, FileWatcherService.Snapshot),
		},
	},
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "StreamEvents",
			Handler:       streamEventsHandler,
			ServerStreams: true,
		},
	},
	Metadata: "file_watcher.proto",
}

// FileWatcherClient is the client API of the FileWatcher service
type FileWatcherClient struct {
	cc grpc.ClientConnInterface
}

// NewFileWatcherClient creates a client speaking the service's JSON codec over cc
func NewFileWatcherClient(cc grpc.ClientConnInterface) *FileWatcherClient {
	return &FileWatcherClient{cc: cc}
}

func invoke[Res any](ctx context.Context, c *FileWatcherClient, method string, in any, opts []grpc.CallOption) (*Res, error) {
	out := new(Res)
	opts = append([]grpc.CallOption{grpc.CallContentSubtype(codecName)}, opts...)
	if err := c.cc.Invoke(ctx, method, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *FileWatcherClient) StartWatching(ctx context.Context, in *WatchRequest, opts ...grpc.CallOption) (*WatchResponse, error) {
	return invoke[WatchResponse](ctx, c, startWatchingMethod, in, opts)
}

func (c *FileWatcherClient) StopWatching(ctx context.Context, in *StopRequest, opts ...grpc.CallOption) (*StopResponse, error) {
	return invoke[StopResponse](ctx, c, stopWatchingMethod, in, opts)
}

func (c *FileWatcherClient) UpdatePatterns(ctx context.Context, in *PatternUpdate, opts ...grpc.CallOption) (*PatternResponse, error) {
	return invoke[PatternResponse](ctx, c, updatePatternsMethod, in, opts)
}

func (c *FileWatcherClient) Snapshot(ctx context.Context, in *SnapshotRequest, opts ...grpc.CallOption) (*EventBatch, error) {
	return invoke[EventBatch](ctx, c, snapshotMethod, in, opts)
}

func (c *FileWatcherClient) StreamEvents(ctx context.Context, in *StreamRequest, opts ...grpc.CallOption) (grpc.ServerStreamingClient[EventBatch], error) {
	opts = append([]grpc.CallOption{grpc.CallContentSubtype(codecName)}, opts...)
	stream, err := c.cc.NewStream(ctx, &fileWatcherServiceDesc.Streams[0], streamEventsMethod, opts...)
	if err != nil {
		return nil, err
	}
	x := &grpc.GenericClientStream[StreamRequest, EventBatch]{ClientStream: stream}
	if err := x.ClientStream.SendMsg(in); err != nil {
		return nil, err
	}
	if err := x.ClientStream.CloseSend(); err != nil {
		return nil, err
	}
	return x, nil
}
