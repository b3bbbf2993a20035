package grpcapi

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/benjaminabbitt/medreserve/api"
	"github.com/benjaminabbitt/medreserve/medreserve"
)

// Client calls the Pharmacy service with JSON DTOs.
type Client struct {
	conn grpc.ClientConnInterface
}

func NewClient(conn grpc.ClientConnInterface) *Client {
	return &Client{conn: conn}
}

// Call invokes method with req and decodes the reply into resp. resp may be nil.
func (c *Client) Call(ctx context.Context, method string, req, resp any) error {
	in := &structpb.Struct{}
	if req != nil {
		var err error
		if in, err = encode(req); err != nil {
			return err
		}
	}
	out := new(structpb.Struct)
	if err := c.conn.Invoke(ctx, "/"+ServiceName+"/"+method, in, out); err != nil {
		return err
	}
	if resp == nil {
		return nil
	}
	return decode(out, resp)
}

// WithActor attaches the identity metadata the service reads.
func WithActor(ctx context.Context, a medreserve.Actor) context.Context {
	return metadata.AppendToOutgoingContext(ctx,
		api.HeaderActorID, a.ID,
		api.HeaderActorRole, string(a.Role),
		api.HeaderActorPharmacy, a.PharmacyID,
	)
}
