package grpcrelay

import (
	"context"
	"encoding/json"

	"github.com/ipfs/go-cid"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"xdao.co/nref/event"
	"xdao.co/nref/storage"
)

// Source is what a mirror serves from. storage.Store satisfies it.
type Source interface {
	Exists(id event.ID) (bool, error)
	Read(id event.ID) (*storage.Entry, error)
}

// Server exposes saved events over the Mirror service.
type Server struct {
	UnimplementedMirrorServer
	Source Source
}

func (s *Server) Get(ctx context.Context, in *wrapperspb.StringValue) (*wrapperspb.BytesValue, error) {
	_ = ctx
	if s == nil || s.Source == nil {
		return nil, status.Error(codes.FailedPrecondition, "missing source")
	}
	id, err := parseKey(in.GetValue())
	if err != nil {
		return nil, mapErr(err)
	}
	entry, err := s.Source.Read(id)
	if err != nil {
		return nil, mapErr(err)
	}
	// Never serve an event whose content does not hash to the requested id.
	if err := entry.Event.CheckID(); err != nil {
		return nil, mapErr(err)
	}
	b, err := json.Marshal(entry.Event)
	if err != nil {
		return nil, status.Error(codes.Internal, "encode event")
	}
	return wrapperspb.Bytes(b), nil
}

func (s *Server) Has(ctx context.Context, in *wrapperspb.StringValue) (*wrapperspb.BoolValue, error) {
	_ = ctx
	if s == nil || s.Source == nil {
		return nil, status.Error(codes.FailedPrecondition, "missing source")
	}
	id, err := parseKey(in.GetValue())
	if err != nil {
		return nil, mapErr(err)
	}
	ok, err := s.Source.Exists(id)
	if err != nil {
		return nil, mapErr(err)
	}
	return wrapperspb.Bool(ok), nil
}

func parseKey(s string) (event.ID, error) {
	c, err := cid.Decode(s)
	if err != nil || !c.Defined() {
		return event.ID{}, event.ErrInvalidID
	}
	return event.IDFromCID(c)
}
