package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/shopspring/decimal"

	"travel_budget/internal/domain"
	"travel_budget/internal/domain/entity"
	"travel_budget/internal/worker"
	"travel_budget/pkg/contextx"
	"travel_budget/pkg/errcodes"
	"travel_budget/pkg/httpx/reply"
	"travel_budget/pkg/httpx/req"
	"travel_budget/pkg/rest"
)

var logger = contextx.LoggerFromContextOrDefault //nolint:gochecknoglobals

type sessionManager interface {
	CreateSession(ctx context.Context, vendorID, customerID string) (string, error)
	GetSession(ctx context.Context, sessionID string) (*entity.SessionSnapshot, error)
	AddPackage(ctx context.Context, sessionID string, record entity.PackageRecord) error
	ApplyModification(ctx context.Context, sessionID string, modType entity.ModificationType, itemID string, value decimal.Decimal) error
	FinalizeSession(ctx context.Context, sessionID string) (*entity.Budget, error)
	AbandonSession(ctx context.Context, sessionID string) error
}

type taskEnqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

type SessionServer struct {
	sessions sessionManager
	tasks    taskEnqueuer
}

func NewSessionServer(sessions sessionManager, tasks taskEnqueuer) SessionServer {
	return SessionServer{
		sessions: sessions,
		tasks:    tasks,
	}
}

func (s SessionServer) postV1Session(w http.ResponseWriter, r *http.Request) error {
	ctx := r.Context()

	var request rest.CreateSessionRequest

	if err := req.Read(r, &request); err != nil {
		return fmt.Errorf("req.Read: %w", err)
	}

	sessionID, err := s.sessions.CreateSession(ctx, request.VendorID, request.CustomerID)
	if err != nil {
		return mapError(err)
	}

	reply.JSON(ctx, w, http.StatusCreated, rest.CreateSessionResponse{SessionID: sessionID})

	return nil
}

func (s SessionServer) getV1Session(w http.ResponseWriter, r *http.Request) error {
	ctx := r.Context()

	sessionID, err := sessionIDFromPath(r)
	if err != nil {
		return err
	}

	snapshot, err := s.sessions.GetSession(ctx, sessionID)
	if err != nil {
		return mapError(err)
	}

	reply.JSON(ctx, w, http.StatusOK, newRESTSession(snapshot))

	return nil
}

func (s SessionServer) postV1SessionPackage(w http.ResponseWriter, r *http.Request) error {
	ctx := r.Context()

	sessionID, err := sessionIDFromPath(r)
	if err != nil {
		return err
	}

	var request rest.AddPackageRequest

	if err := req.Read(r, &request); err != nil {
		return fmt.Errorf("req.Read: %w", err)
	}

	record, err := newDomainPackage(request.Package, time.Now())
	if err != nil {
		return mapError(domain.WrapError(err, errcodes.InvalidPackageRecord, "malformed package record"))
	}

	if err := s.sessions.AddPackage(ctx, sessionID, record); err != nil {
		return mapError(err)
	}

	reply.Created(w)

	return nil
}

func (s SessionServer) postV1SessionModification(w http.ResponseWriter, r *http.Request) error {
	ctx := r.Context()

	sessionID, err := sessionIDFromPath(r)
	if err != nil {
		return err
	}

	var request rest.ModificationRequest

	if err := req.Read(r, &request); err != nil {
		return fmt.Errorf("req.Read: %w", err)
	}

	value := decimal.Zero

	if request.Value != "" {
		value, err = decimal.NewFromString(request.Value)
		if err != nil {
			return mapError(domain.WrapError(err, errcodes.ValidationError, "malformed modification value"))
		}
	}

	err = s.sessions.ApplyModification(ctx, sessionID,
		entity.ModificationType(request.Type), request.ItemID, value)
	if err != nil {
		return mapError(err)
	}

	reply.OK(w)

	return nil
}

func (s SessionServer) postV1SessionFinalize(w http.ResponseWriter, r *http.Request) error {
	ctx := r.Context()

	sessionID, err := sessionIDFromPath(r)
	if err != nil {
		return err
	}

	budget, err := s.sessions.FinalizeSession(ctx, sessionID)
	if err != nil {
		return mapError(err)
	}

	// Deferred rules are validated out of band; a queue hiccup must not fail
	// the finalization the seller already got.
	if task, err := worker.NewDeferredRulesTask(budget.ID); err == nil {
		if _, err := s.tasks.EnqueueContext(ctx, task); err != nil {
			logger(ctx).Error("failed to enqueue deferred rule validation",
				"budget_id", budget.ID,
				"error", err,
			)
		}
	}

	reply.JSON(ctx, w, http.StatusCreated, newRESTBudget(budget))

	return nil
}

func (s SessionServer) deleteV1Session(w http.ResponseWriter, r *http.Request) error {
	ctx := r.Context()

	sessionID, err := sessionIDFromPath(r)
	if err != nil {
		return err
	}

	if err := s.sessions.AbandonSession(ctx, sessionID); err != nil {
		return mapError(err)
	}

	reply.OK(w)

	return nil
}

func sessionIDFromPath(r *http.Request) (string, error) {
	raw := r.PathValue("id")

	if _, err := uuid.Parse(raw); err != nil {
		return "", mapError(domain.WrapError(err, errcodes.InvalidSessionID, "session id must be a UUID"))
	}

	return raw, nil
}
