package orchestrator

import (
	"context"
	"fmt"
	"time"

	pb "agones.dev/agones/pkg/sdk"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// Agones talks to the Agones SDK server sidecar over its local gRPC
// socket, the same contract the teacher's cmd/agones-sidecar process uses
// to call Ready().
type Agones struct {
	client pb.SDKClient
	conn   *grpc.ClientConn
	logger *zap.Logger
}

// DialAgones connects to the SDK sidecar at addr (default
// localhost:59357).
func DialAgones(ctx context.Context, addr string, logger *zap.Logger) (*Agones, error) {
	dialCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	conn, err := grpc.DialContext(
		dialCtx,
		addr,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithBlock(),
	)
	if err != nil {
		return nil, fmt.Errorf("orchestrator.DialAgones: %w", err)
	}

	return &Agones{client: pb.NewSDKClient(conn), conn: conn, logger: logger}, nil
}

func (a *Agones) Close() error {
	return a.conn.Close()
}

// Ready tells Agones the GameServer is done initializing and can be
// allocated.
func (a *Agones) Ready(ctx context.Context) error {
	if _, err := a.client.Ready(ctx, &pb.Empty{}); err != nil {
		return fmt.Errorf("orchestrator.Agones.Ready: %w", err)
	}
	return nil
}

// Health sends a single health ping on the SDK's bidirectional health
// stream. A fresh stream per call is wasteful but keeps the adapter
// stateless between heartbeats, matching how the agent calls it once per
// 5-second tick.
func (a *Agones) Health(ctx context.Context) error {
	stream, err := a.client.Health(ctx)
	if err != nil {
		return fmt.Errorf("orchestrator.Agones.Health: open stream: %w", err)
	}
	if err := stream.Send(&pb.Empty{}); err != nil {
		return fmt.Errorf("orchestrator.Agones.Health: send: %w", err)
	}
	if _, err := stream.CloseAndRecv(); err != nil {
		return fmt.Errorf("orchestrator.Agones.Health: close: %w", err)
	}
	return nil
}

// Shutdown requests Agones terminate and delete the GameServer resource.
func (a *Agones) Shutdown(ctx context.Context) error {
	if _, err := a.client.Shutdown(ctx, &pb.Empty{}); err != nil {
		return fmt.Errorf("orchestrator.Agones.Shutdown: %w", err)
	}
	return nil
}
