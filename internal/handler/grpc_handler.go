package handler

import (
	"context"

	"github.com/rs/zerolog"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/pesio-ai/be-ojt-placements/internal/errors"
	"github.com/pesio-ai/be-ojt-placements/internal/service"
)

// GRPCHandler implements PlacementServiceServer
type GRPCHandler struct {
	workflow  *service.WorkflowCoordinator
	companies *service.CompanyService
	logger    zerolog.Logger
}

// NewGRPCHandler creates a new gRPC handler
func NewGRPCHandler(workflow *service.WorkflowCoordinator, companies *service.CompanyService, logger zerolog.Logger) *GRPCHandler {
	return &GRPCHandler{
		workflow:  workflow,
		companies: companies,
		logger:    logger.With().Str("handler", "grpc").Logger(),
	}
}

func field(in *structpb.Struct, name string) string {
	return in.GetFields()[name].GetStringValue()
}

func required(in *structpb.Struct, name string) (string, error) {
	v := field(in, name)
	if v == "" {
		return "", mapErrorToGRPC(errors.InvalidInput(name, name+" is required"))
	}
	return v, nil
}

func (h *GRPCHandler) respond(method string, v any, err error) (*structpb.Struct, error) {
	if err != nil {
		h.logger.Warn().Err(err).Str("method", method).Msg("gRPC call failed")
		return nil, mapErrorToGRPC(err)
	}
	out, err := toStruct(v)
	if err != nil {
		h.logger.Error().Err(err).Str("method", method).Msg("Failed to encode response")
		return nil, mapErrorToGRPC(errors.Wrap(err, errors.ErrCodeInternal, "encode response"))
	}
	return out, nil
}

// Approve approves an application against the company ledger
func (h *GRPCHandler) Approve(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	id, err := required(req, "application_id")
	if err != nil {
		return nil, err
	}
	h.logger.Info().Str("application_id", id).Msg("gRPC Approve called")
	out, err := h.workflow.Approve(ctx, id, field(req, "notes"))
	return h.respond("Approve", out, err)
}

// Reject rejects an application with a reason
func (h *GRPCHandler) Reject(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	id, err := required(req, "application_id")
	if err != nil {
		return nil, err
	}
	reason, err := required(req, "reason")
	if err != nil {
		return nil, err
	}
	h.logger.Info().Str("application_id", id).Msg("gRPC Reject called")
	out, err := h.workflow.Reject(ctx, id, reason, field(req, "notes"))
	return h.respond("Reject", out, err)
}

// Archive archives an application
func (h *GRPCHandler) Archive(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	id, err := required(req, "application_id")
	if err != nil {
		return nil, err
	}
	out, err := h.workflow.Archive(ctx, id)
	return h.respond("Archive", out, err)
}

// Retrieve restores an archived application, re-evaluating capacity
func (h *GRPCHandler) Retrieve(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	id, err := required(req, "application_id")
	if err != nil {
		return nil, err
	}
	out, err := h.workflow.Retrieve(ctx, id)
	return h.respond("Retrieve", out, err)
}

// GetCapacity returns a company's occupancy
func (h *GRPCHandler) GetCapacity(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	id, err := required(req, "company_id")
	if err != nil {
		return nil, err
	}
	view, err := h.companies.Get(ctx, id)
	if err != nil {
		return h.respond("GetCapacity", nil, err)
	}
	return h.respond("GetCapacity", map[string]any{"company_id": id, "capacity": view.Capacity}, nil)
}
