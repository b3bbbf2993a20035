// Package grpcapi serves the core over gRPC. Messages are
// google.protobuf.Struct values carrying the api package's JSON shapes, so the
// service needs no generated code.
package grpcapi

import (
	"context"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/benjaminabbitt/medreserve/api"
	"github.com/benjaminabbitt/medreserve/medreserve"
)

const ServiceName = "medreserve.v1.Pharmacy"

// PharmacyServer is the handler type of the Pharmacy service.
type PharmacyServer interface {
	AdjustStock(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ListInventory(context.Context, *structpb.Struct) (*structpb.Struct, error)
	CreateReservation(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GetReservation(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ListMyReservations(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ConfirmReservation(context.Context, *structpb.Struct) (*structpb.Struct, error)
	CancelReservation(context.Context, *structpb.Struct) (*structpb.Struct, error)
	PickupReservation(context.Context, *structpb.Struct) (*structpb.Struct, error)
	SubmitPrescription(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GetPrescription(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ListMyPrescriptions(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ListPharmacyPrescriptions(context.Context, *structpb.Struct) (*structpb.Struct, error)
	StartReview(context.Context, *structpb.Struct) (*structpb.Struct, error)
	DecidePrescription(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ConfirmPrescription(context.Context, *structpb.Struct) (*structpb.Struct, error)
	CancelPrescription(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

type handlerFunc func(PharmacyServer, context.Context, *structpb.Struct) (*structpb.Struct, error)

func unary(name string, call handlerFunc) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(structpb.Struct)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(PharmacyServer), ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + ServiceName + "/" + name}
			handler := func(ctx context.Context, req any) (any, error) {
				return call(srv.(PharmacyServer), ctx, req.(*structpb.Struct))
			}
			return interceptor(ctx, in, info, handler)
		},
	}
}

// ServiceDesc describes the Pharmacy service for grpc.Server.RegisterService.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*PharmacyServer)(nil),
	Methods: []grpc.MethodDesc{
		unary("AdjustStock", PharmacyServer.AdjustStock),
		unary("ListInventory", PharmacyServer.ListInventory),
		unary("CreateReservation", PharmacyServer.CreateReservation),
		unary("GetReservation", PharmacyServer.GetReservation),
		unary("ListMyReservations", PharmacyServer.ListMyReservations),
		unary("ConfirmReservation", PharmacyServer.ConfirmReservation),
		unary("CancelReservation", PharmacyServer.CancelReservation),
		unary("PickupReservation", PharmacyServer.PickupReservation),
		unary("SubmitPrescription", PharmacyServer.SubmitPrescription),
		unary("GetPrescription", PharmacyServer.GetPrescription),
		unary("ListMyPrescriptions", PharmacyServer.ListMyPrescriptions),
		unary("ListPharmacyPrescriptions", PharmacyServer.ListPharmacyPrescriptions),
		unary("StartReview", PharmacyServer.StartReview),
		unary("DecidePrescription", PharmacyServer.DecidePrescription),
		unary("ConfirmPrescription", PharmacyServer.ConfirmPrescription),
		unary("CancelPrescription", PharmacyServer.CancelPrescription),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "medreserve/v1/pharmacy",
}

// Register adds the Pharmacy service to s. It matches medreserve.RegisterFunc
// once bound to a Server.
func Register(s *grpc.Server, srv PharmacyServer) {
	s.RegisterService(&ServiceDesc, srv)
}

// Server implements PharmacyServer over the core services.
type Server struct {
	svc    api.Services
	logger *zap.Logger
}

func NewServer(svc api.Services, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{svc: svc, logger: logger}
}

// RegisterFunc binds the server for medreserve.Serve.
func (s *Server) RegisterFunc() medreserve.RegisterFunc {
	return func(g *grpc.Server) { Register(g, s) }
}

func actorFrom(ctx context.Context) medreserve.Actor {
	md, _ := metadata.FromIncomingContext(ctx)
	return api.ActorFrom(func(key string) string {
		if vals := md.Get(key); len(vals) > 0 {
			return vals[0]
		}
		return ""
	})
}

// reply encodes a successful result or maps a core error to a status.
func (s *Server) reply(method string, v any, err error) (*structpb.Struct, error) {
	if err != nil {
		if medreserve.AsCommandError(err) == nil {
			s.logger.Error("grpc call failed", zap.String("method", method), zap.Error(err))
		}
		return nil, medreserve.MapCommandError(err)
	}
	return encode(v)
}

func (s *Server) AdjustStock(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req api.AdjustStockRequest
	if err := decode(in, &req); err != nil {
		return nil, err
	}
	rec, err := s.svc.Inventory.Adjust(ctx, actorFrom(ctx), req.Key(), req.Delta, req.Adjustment())
	return s.reply("AdjustStock", api.FromRecord(rec), err)
}

func (s *Server) ListInventory(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req api.InventoryQuery
	if err := decode(in, &req); err != nil {
		return nil, err
	}
	recs, err := s.svc.Inventory.List(ctx, req.Filter())
	return s.reply("ListInventory", api.FromRecords(recs), err)
}

func (s *Server) CreateReservation(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req api.CreateReservationRequest
	if err := decode(in, &req); err != nil {
		return nil, err
	}
	r, err := s.svc.Reservations.Create(ctx, actorFrom(ctx), req.PharmacyID, req.ItemRequests())
	return s.reply("CreateReservation", api.FromReservation(r), err)
}

func (s *Server) GetReservation(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req api.IDRequest
	if err := decode(in, &req); err != nil {
		return nil, err
	}
	r, err := s.svc.Reservations.Get(ctx, actorFrom(ctx), req.ID)
	return s.reply("GetReservation", api.FromReservation(r), err)
}

func (s *Server) ListMyReservations(ctx context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	rs, err := s.svc.Reservations.ListMine(ctx, actorFrom(ctx))
	return s.reply("ListMyReservations", api.FromReservations(rs), err)
}

func (s *Server) ConfirmReservation(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req api.IDRequest
	if err := decode(in, &req); err != nil {
		return nil, err
	}
	r, err := s.svc.Reservations.Confirm(ctx, actorFrom(ctx), req.ID)
	return s.reply("ConfirmReservation", api.FromReservation(r), err)
}

func (s *Server) CancelReservation(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req api.IDRequest
	if err := decode(in, &req); err != nil {
		return nil, err
	}
	r, err := s.svc.Reservations.Cancel(ctx, actorFrom(ctx), req.ID)
	return s.reply("CancelReservation", api.FromReservation(r), err)
}

func (s *Server) PickupReservation(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req api.IDRequest
	if err := decode(in, &req); err != nil {
		return nil, err
	}
	r, err := s.svc.Reservations.Pickup(ctx, actorFrom(ctx), req.ID)
	return s.reply("PickupReservation", api.FromReservation(r), err)
}

func (s *Server) SubmitPrescription(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req api.SubmitPrescriptionRequest
	if err := decode(in, &req); err != nil {
		return nil, err
	}
	p, err := s.svc.Prescriptions.Submit(ctx, actorFrom(ctx), req.PharmacyID, req.Uploads(), req.Note)
	return s.reply("SubmitPrescription", api.FromPrescription(p), err)
}

func (s *Server) GetPrescription(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req api.IDRequest
	if err := decode(in, &req); err != nil {
		return nil, err
	}
	p, err := s.svc.Prescriptions.Get(ctx, actorFrom(ctx), req.ID)
	return s.reply("GetPrescription", api.FromPrescription(p), err)
}

func (s *Server) ListMyPrescriptions(ctx context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	ps, err := s.svc.Prescriptions.ListMine(ctx, actorFrom(ctx))
	return s.reply("ListMyPrescriptions", api.FromPrescriptions(ps), err)
}

func (s *Server) ListPharmacyPrescriptions(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req api.ListPrescriptionsRequest
	if err := decode(in, &req); err != nil {
		return nil, err
	}
	ps, err := s.svc.Prescriptions.ListForPharmacy(ctx, actorFrom(ctx), req.PharmacyID, req.Status)
	return s.reply("ListPharmacyPrescriptions", api.FromPrescriptions(ps), err)
}

func (s *Server) StartReview(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req api.IDRequest
	if err := decode(in, &req); err != nil {
		return nil, err
	}
	p, err := s.svc.Prescriptions.StartReview(ctx, actorFrom(ctx), req.ID)
	return s.reply("StartReview", api.FromPrescription(p), err)
}

func (s *Server) DecidePrescription(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req api.DecisionRequest
	if err := decode(in, &req); err != nil {
		return nil, err
	}
	p, err := s.svc.Prescriptions.Decide(ctx, actorFrom(ctx), req.ID, req.Decision())
	return s.reply("DecidePrescription", api.FromPrescription(p), err)
}

func (s *Server) ConfirmPrescription(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req api.IDRequest
	if err := decode(in, &req); err != nil {
		return nil, err
	}
	p, r, err := s.svc.Prescriptions.ConfirmToReservation(ctx, actorFrom(ctx), req.ID)
	return s.reply("ConfirmPrescription", api.ConfirmPrescriptionResponse{
		Prescription: api.FromPrescription(p),
		Reservation:  api.FromReservation(r),
	}, err)
}

func (s *Server) CancelPrescription(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req api.IDRequest
	if err := decode(in, &req); err != nil {
		return nil, err
	}
	p, err := s.svc.Prescriptions.Cancel(ctx, actorFrom(ctx), req.ID)
	return s.reply("CancelPrescription", api.FromPrescription(p), err)
}

var _ PharmacyServer = (*Server)(nil)
