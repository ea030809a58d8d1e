package remote

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"babybot/pkg/activity"
	"babybot/pkg/persistence"
)

// Handler serves Requests against a local Store. Failures are reported in the
// Response rather than as Lambda function errors.
type Handler struct {
	Store persistence.Store
	Log   *slog.Logger
}

// Handle executes one Request.
func (h *Handler) Handle(ctx context.Context, req Request) (Response, error) {
	log := h.Log
	if log == nil {
		log = slog.Default()
	}
	log = log.With("component", "persistence.handler", "func_db", req.FuncDB)

	result, err := h.dispatch(ctx, req)
	if err != nil {
		log.Error("Persistence request failed", "error", err)
		return Response{StatusCode: http.StatusInternalServerError, FuncDB: req.FuncDB, Error: err.Error()}, nil
	}

	body, err := encodeResult(result)
	if err != nil {
		return Response{StatusCode: http.StatusInternalServerError, FuncDB: req.FuncDB, Error: err.Error()}, nil
	}

	return Response{StatusCode: http.StatusOK, FuncDB: req.FuncDB, Body: body}, nil
}

func (h *Handler) dispatch(ctx context.Context, req Request) (Result, error) {
	result := Result{FuncDB: req.FuncDB}

	switch req.FuncDB {
	case OpInsertActivityRecord:
		if req.Record == nil {
			return result, errors.New("request is missing record")
		}
		id, err := h.Store.InsertActivityRecord(ctx, *req.Record)
		result.InsertID = id
		return result, err
	case OpInsertMediaAsset:
		if req.Asset == nil {
			return result, errors.New("request is missing asset")
		}
		id, err := h.Store.InsertMediaAsset(ctx, *req.Asset)
		result.InsertID = id
		return result, err
	case OpManagedEntities:
		access, err := h.Store.ManagedEntities(ctx, req.UserID)
		if err != nil {
			return result, err
		}
		for _, id := range access.EntityIDs() {
			result.Entities = append(result.Entities, activity.Entity{ID: id, Role: activity.RoleManager})
		}
		return result, nil
	case OpUserIDByPlatformID:
		id, ok, err := h.Store.UserIDByPlatformID(ctx, req.Platform, req.PlatformID)
		result.UserID = id
		result.Found = ok
		return result, err
	case OpPing:
		return result, h.Store.Ping(ctx)
	default:
		return result, fmt.Errorf("unknown funcDB %q", req.FuncDB)
	}
}
