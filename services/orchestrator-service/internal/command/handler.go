package command

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/paystream-au/railcore/services/orchestrator-service/internal/idempotency"
	"github.com/paystream-au/railcore/services/orchestrator-service/internal/ratelimit"
	"github.com/paystream-au/railcore/services/orchestrator-service/internal/rejection"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// ErrInconclusive means a stale reservation from a crashed invocation was
// found. The command's true outcome is unknown; the caller must retry later
// rather than have the pipeline re-execute blindly.
var ErrInconclusive = errors.New("command outcome inconclusive, retry later")

// Handler runs one command through the pipeline:
//
//	RECEIVED -> {DUPLICATE | VALIDATING} -> {REJECTED | EXECUTING} -> {PROCESSED | REJECTED}
//
// The reservation taken up front is the atomic duplicate check: two
// concurrent submissions of the same command_id cannot both pass it. Handler
// itself keeps no per-command state and is safe under arbitrary concurrent
// invocation.
type Handler struct {
	store      idempotency.Store
	rejections *rejection.Emitter
	logics     *Registry
	limiter    ratelimit.Limiter // optional
	logger     *slog.Logger
}

func NewHandler(store idempotency.Store, rejections *rejection.Emitter, logics *Registry, logger *slog.Logger) *Handler {
	return &Handler{
		store:      store,
		rejections: rejections,
		logics:     logics,
		logger:     logger,
	}
}

// WithLimiter adds a submission rate limiter, keyed per entity.
func (h *Handler) WithLimiter(limiter ratelimit.Limiter) *Handler {
	h.limiter = limiter
	return h
}

// Handle processes one command to a final outcome. When it returns, the
// corresponding fact (domain event or rejection) has already been handed to
// the publisher.
//
// The returned error is nil for every expected business outcome, including
// rejections; it is non-nil only for infrastructure faults, internal
// contract violations, and the inconclusive stale-reservation case.
func (h *Handler) Handle(ctx context.Context, cmd *Command) (*Result, error) {
	if cmd == nil || cmd.ID == "" || cmd.Type == "" {
		return nil, fmt.Errorf("command_id and command_type are required")
	}

	ctx, span := otel.Tracer("orchestrator").Start(ctx, "command.handle",
		trace.WithAttributes(
			attribute.String("command.id", cmd.ID),
			attribute.String("command.type", cmd.Type),
		),
	)
	defer span.End()

	if res, err := h.checkRateLimit(ctx, cmd); res != nil || err != nil {
		return res, err
	}

	// Atomic duplicate check: reserve the command_id before touching any
	// domain logic.
	switch err := h.store.Reserve(ctx, cmd.ID, cmd.Type); {
	case err == nil:
	case errors.Is(err, idempotency.ErrAlreadyProcessed),
		errors.Is(err, idempotency.ErrReservationHeld):
		rejectionID, emitErr := h.rejections.DuplicateCommand(ctx, cmd.info())
		if emitErr != nil {
			return nil, emitErr
		}
		return rejectedResult(rejectionID, rejection.ReasonDuplicateCommand, "Duplicate command"), nil
	case errors.Is(err, idempotency.ErrReservationStale):
		return nil, fmt.Errorf("command %s: %w", cmd.ID, ErrInconclusive)
	default:
		return nil, fmt.Errorf("reserve command %s: %w", cmd.ID, err)
	}

	logic, ok := h.logics.Resolve(cmd.Type)
	if !ok {
		return h.reject(ctx, cmd, rejection.InvalidCommand(
			fmt.Sprintf("unknown command type %q", cmd.Type)))
	}

	if err := logic.Validate(ctx, cmd); err != nil {
		return h.reject(ctx, cmd, rejection.Classify(err))
	}

	eventID, err := logic.Execute(ctx, cmd)
	if err != nil {
		return h.reject(ctx, cmd, rejection.Classify(err))
	}

	// Only a confirmed execute marks the command processed. The domain event
	// is already with the publisher at this point, so a commit failure is an
	// internal contract violation, not a retryable business outcome.
	if err := h.store.Commit(ctx, cmd.ID, eventID); err != nil {
		return nil, fmt.Errorf("commit command %s after event %s: %w", cmd.ID, eventID, err)
	}

	h.logger.Info("command processed",
		"command_id", cmd.ID,
		"command_type", cmd.Type,
		"event_id", eventID,
	)
	return successResult(eventID), nil
}

// checkRateLimit returns a non-nil result when the command was refused by the
// limiter. Limiter outages fail open: losing throttling is preferable to
// refusing all traffic.
func (h *Handler) checkRateLimit(ctx context.Context, cmd *Command) (*Result, error) {
	if h.limiter == nil {
		return nil, nil
	}
	key := cmd.Type + ":" + cmd.EntityID
	allowed, err := h.limiter.Allow(ctx, key)
	if err != nil {
		h.logger.Warn("rate limiter unavailable, allowing command", "err", err, "command_id", cmd.ID)
		return nil, nil
	}
	if allowed {
		return nil, nil
	}
	rejectionID, emitErr := h.rejections.RateLimitExceeded(ctx, cmd.info(), h.limiter.Limit(), h.limiter.Window())
	if emitErr != nil {
		return nil, emitErr
	}
	return rejectedResult(rejectionID, rejection.ReasonRateLimitExceeded, "Rate limit exceeded"), nil
}

// reject releases the reservation (the command stays legitimately retryable)
// and emits exactly one CommandRejected fact. An error while emitting the
// rejection itself is the last line of defense failing: it propagates
// unrecovered.
func (h *Handler) reject(ctx context.Context, cmd *Command, derr *rejection.DomainError) (*Result, error) {
	if err := h.store.Release(ctx, cmd.ID); err != nil {
		return nil, fmt.Errorf("release command %s: %w", cmd.ID, err)
	}
	rejectionID, err := h.rejections.FromDomainError(ctx, cmd.info(), derr)
	if err != nil {
		return nil, err
	}
	return rejectedResult(rejectionID, derr.Reason, derr.Message), nil
}
