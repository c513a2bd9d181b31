package grpcserver

import (
	"context"
	"encoding/json"

	"github.com/cockroachdb/errors"
	"google.golang.org/grpc"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"waiterboard/domain/waiter"
)

// Client is a typed caller for the WaiterBoard service.
type Client struct {
	cc grpc.ClientConnInterface
}

func NewClient(cc grpc.ClientConnInterface) *Client {
	return &Client{cc: cc}
}

func (c *Client) CreateOrder(ctx context.Context, in waiter.NewOrder) (waiter.Order, error) {
	var o waiter.Order
	err := c.structCall(ctx, "CreateOrder", in, &o)
	return o, err
}

func (c *Client) GetOrder(ctx context.Context, id int64) (waiter.Order, error) {
	out := &structpb.Struct{}
	if err := c.cc.Invoke(ctx, fullMethod("GetOrder"), wrapperspb.Int64(id), out); err != nil {
		return waiter.Order{}, err
	}
	var o waiter.Order
	err := decodeStruct(out, &o)
	return o, err
}

func (c *Client) UpdateOrder(ctx context.Context, id int64, p waiter.Patch, initials string) (waiter.Order, error) {
	var o waiter.Order
	err := c.structCall(ctx, "UpdateOrder", updateRequest{ID: id, Patch: p, StaffInitials: initials}, &o)
	return o, err
}

func (c *Client) DeleteOrder(ctx context.Context, id int64, initials string) error {
	in, err := toStruct(deleteRequest{ID: id, StaffInitials: initials})
	if err != nil {
		return err
	}
	return c.cc.Invoke(ctx, fullMethod("DeleteOrder"), in, &emptypb.Empty{})
}

func (c *Client) Settings(ctx context.Context) (waiter.Settings, error) {
	var s waiter.Settings
	err := c.emptyCall(ctx, "GetSettings", &s)
	return s, err
}

func (c *Client) UpdateSettings(ctx context.Context, update map[string]any) (waiter.Settings, error) {
	var s waiter.Settings
	err := c.structCall(ctx, "UpdateSettings", update, &s)
	return s, err
}

// ProductionBoard returns the raw board document.
func (c *Client) ProductionBoard(ctx context.Context) (map[string]any, error) {
	var m map[string]any
	err := c.emptyCall(ctx, "ProductionBoard", &m)
	return m, err
}

func (c *Client) PatientBoard(ctx context.Context) (map[string]any, error) {
	var m map[string]any
	err := c.emptyCall(ctx, "PatientBoard", &m)
	return m, err
}

func (c *Client) AuditLog(ctx context.Context, limit int) ([]waiter.AuditEntry, error) {
	out := &structpb.Struct{}
	if err := c.cc.Invoke(ctx, fullMethod("AuditLog"), wrapperspb.Int32(int32(limit)), out); err != nil {
		return nil, err
	}
	var res struct {
		Entries []waiter.AuditEntry `json:"entries"`
	}
	err := decodeStruct(out, &res)
	return res.Entries, err
}

// LookupPatient reports found=false for an unknown MRN.
func (c *Client) LookupPatient(ctx context.Context, mrn string) (waiter.Patient, bool, error) {
	out := &structpb.Struct{}
	if err := c.cc.Invoke(ctx, fullMethod("LookupPatient"), wrapperspb.String(mrn), out); err != nil {
		return waiter.Patient{}, false, err
	}
	var res struct {
		Found   bool           `json:"found"`
		Patient waiter.Patient `json:"patient"`
	}
	err := decodeStruct(out, &res)
	return res.Patient, res.Found, err
}

func (c *Client) structCall(ctx context.Context, name string, in, out any) error {
	req, err := toStruct(in)
	if err != nil {
		return err
	}
	resp := &structpb.Struct{}
	if err := c.cc.Invoke(ctx, fullMethod(name), req, resp); err != nil {
		return err
	}
	return decodeStruct(resp, out)
}

func (c *Client) emptyCall(ctx context.Context, name string, out any) error {
	resp := &structpb.Struct{}
	if err := c.cc.Invoke(ctx, fullMethod(name), &emptypb.Empty{}, resp); err != nil {
		return err
	}
	return decodeStruct(resp, out)
}

func decodeStruct(s *structpb.Struct, v any) error {
	raw, err := protojson.Marshal(s)
	if err != nil {
		return errors.Wrap(err, "decode response")
	}
	return errors.Wrap(json.Unmarshal(raw, v), "decode response")
}
