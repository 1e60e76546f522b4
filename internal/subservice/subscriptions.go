package subservice

import (
	"context"
	"errors"
	"fmt"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/shopspring/decimal"

	"github.com/starford/subtrack/internal/apperr"
	"github.com/starford/subtrack/internal/models"
	"github.com/starford/subtrack/internal/sse"
)

// Patch is a user edit of a subscription. Nil fields are left unchanged.
type Patch struct {
	Status         *models.Status
	Interval       *models.Interval
	NextExpected   *time.Time
	BaselineAmount *decimal.Decimal
}

// Empty reports whether p changes nothing.
func (p Patch) Empty() bool {
	return p.Status == nil && p.Interval == nil && p.NextExpected == nil && p.BaselineAmount == nil
}

// Validate checks the patched values.
func (p Patch) Validate() error {
	return validation.ValidateStruct(&p,
		validation.Field(&p.Status, validation.By(func(any) error {
			if p.Status != nil && !p.Status.Valid() {
				return fmt.Errorf("unknown status %q", *p.Status)
			}
			return nil
		})),
		validation.Field(&p.Interval, validation.By(func(any) error {
			if p.Interval != nil && !p.Interval.Valid() {
				return fmt.Errorf("unknown interval %q", *p.Interval)
			}
			return nil
		})),
		validation.Field(&p.BaselineAmount, validation.By(func(any) error {
			if p.BaselineAmount != nil && !p.BaselineAmount.IsPositive() {
				return errors.New("must be positive")
			}
			return nil
		})),
	)
}

// ListSubscriptions returns every stored subscription ordered by vendor key.
func (s *Service) ListSubscriptions(_ context.Context) ([]models.Subscription, error) {
	subs, err := s.repo.ListSubscriptions()
	if err != nil {
		return nil, err
	}
	return nonNilSlice(subs), nil
}

// GetSubscription returns one subscription by id.
func (s *Service) GetSubscription(_ context.Context, id string) (*models.Subscription, error) {
	return s.repo.GetSubscription(id)
}

// Override applies a user edit and hands the edited field groups to the
// user, so later detection runs leave them alone. Lifecycle always becomes
// user-owned; observation only when the baseline amount is set.
func (s *Service) Override(_ context.Context, id string, p Patch) (*models.Subscription, error) {
	if p.Empty() {
		return nil, fmt.Errorf("%w: empty patch", apperr.ErrInvalidInput)
	}
	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", apperr.ErrInvalidInput, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	sub, err := s.repo.GetSubscription(id)
	if err != nil {
		return nil, err
	}
	if p.Status != nil {
		sub.Status = *p.Status
	}
	if p.Interval != nil {
		sub.Interval = *p.Interval
		if sub.Interval == models.IntervalIrregular && p.NextExpected == nil {
			sub.NextExpected = nil
		}
	}
	if p.NextExpected != nil {
		next := models.Day(*p.NextExpected)
		sub.NextExpected = &next
	}
	if p.BaselineAmount != nil {
		sub.BaselineAmount = *p.BaselineAmount
		sub.Ownership.Observation = models.OwnerUser
	}
	if sub.Ownership.Observation == "" {
		sub.Ownership.Observation = models.OwnerEngine
	}
	sub.Ownership.Lifecycle = models.OwnerUser
	sub.UpdatedAt = s.now().UTC()

	if err := s.repo.SaveOverride(*sub); err != nil {
		return nil, err
	}
	s.notify(sse.KindOverridden, sub.VendorKey)
	return sub, nil
}

// ClearOverride returns every field group to the engine and resets the
// status to inferred. The next detection run refreshes the record.
func (s *Service) ClearOverride(_ context.Context, id string) (*models.Subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sub, err := s.repo.GetSubscription(id)
	if err != nil {
		return nil, err
	}
	sub.Ownership = models.EngineOwned()
	sub.Status = models.StatusInferred
	sub.UpdatedAt = s.now().UTC()
	if err := s.repo.SaveOverride(*sub); err != nil {
		return nil, err
	}
	s.notify(sse.KindUpdated, sub.VendorKey)
	return sub, nil
}
