// Package notify delivers gang notices to the chat platform and by e-mail.
// Every notifier here is best-effort: callers log the error and move on.
package notify

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"gangkeeper-backend/internal/domain"
)

// Notifier matches service.Notifier.
type Notifier interface {
	Notify(ctx context.Context, notice domain.Notice) error
}

// GangLookup resolves where a gang's notices go.
type GangLookup interface {
	GetByID(ctx context.Context, id int32) (*domain.Gang, error)
}

// Multi fans a notice out to every notifier and joins their errors.
type Multi []Notifier

func (m Multi) Notify(ctx context.Context, notice domain.Notice) error {
	var errs []error
	for _, n := range m {
		if n == nil {
			continue
		}
		if err := n.Notify(ctx, notice); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

const (
	decisionApprove = "approve"
	decisionReject  = "reject"
)

// CallbackData encodes a review button as "<kind>:<approve|reject>:<id>".
func CallbackData(review domain.Review, approve bool) string {
	decision := decisionReject
	if approve {
		decision = decisionApprove
	}
	return fmt.Sprintf("%s:%s:%d", review.Kind, decision, review.TargetID)
}

// ParseCallback is the inverse of CallbackData.
func ParseCallback(data string) (domain.Review, bool, error) {
	parts := strings.Split(data, ":")
	if len(parts) != 3 {
		return domain.Review{}, false, fmt.Errorf("%w: malformed callback %q", domain.ErrValidation, data)
	}

	kind := domain.ReviewKind(parts[0])
	switch kind {
	case domain.ReviewTransaction, domain.ReviewLeave, domain.ReviewMember:
	default:
		return domain.Review{}, false, fmt.Errorf("%w: unknown review kind %q", domain.ErrValidation, parts[0])
	}

	var approve bool
	switch parts[1] {
	case decisionApprove:
		approve = true
	case decisionReject:
	default:
		return domain.Review{}, false, fmt.Errorf("%w: unknown decision %q", domain.ErrValidation, parts[1])
	}

	id, err := strconv.ParseInt(parts[2], 10, 32)
	if err != nil || id <= 0 {
		return domain.Review{}, false, fmt.Errorf("%w: bad target id %q", domain.ErrValidation, parts[2])
	}
	return domain.Review{Kind: kind, TargetID: int32(id)}, approve, nil
}
