package address

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
)

// Input holds the fields of a new address.
type Input struct {
	FirstName   string `json:"firstName" validate:"required,max=100"`
	LastName    string `json:"lastName" validate:"required,max=100"`
	PhoneNumber string `json:"phoneNumber" validate:"required,max=32"`
	Street      string `json:"street" validate:"required,max=200"`
	City        string `json:"city" validate:"required,max=100"`
	State       string `json:"state" validate:"max=100"`
	ZipCode     string `json:"zipCode" validate:"max=20"`
	Country     string `json:"country" validate:"required,max=100"`
	Default     bool   `json:"default"`
}

// Patch holds the fields to change on an existing address. Nil fields are
// left untouched.
type Patch struct {
	FirstName   *string `json:"firstName" validate:"omitnil,min=1,max=100"`
	LastName    *string `json:"lastName" validate:"omitnil,min=1,max=100"`
	PhoneNumber *string `json:"phoneNumber" validate:"omitnil,min=1,max=32"`
	Street      *string `json:"street" validate:"omitnil,min=1,max=200"`
	City        *string `json:"city" validate:"omitnil,min=1,max=100"`
	State       *string `json:"state" validate:"omitnil,max=100"`
	ZipCode     *string `json:"zipCode" validate:"omitnil,max=20"`
	Country     *string `json:"country" validate:"omitnil,min=1,max=100"`
	Default     *bool   `json:"default"`
}

// Validator checks tagged input structs.
type Validator interface {
	Struct(s any) error
}

// Service manages a user's address book. A user has at most one default
// address.
type Service struct {
	repo      Repository
	tx        Transactor
	validator Validator
	now       func() time.Time
}

// NewService creates an address Service.
func NewService(repo Repository, tx Transactor, v Validator) *Service {
	return &Service{repo: repo, tx: tx, validator: v, now: time.Now}
}

// Create stores a new address for userID.
func (s *Service) Create(ctx context.Context, userID string, in Input) (*Address, error) {
	if err := s.validator.Struct(in); err != nil {
		return nil, err
	}

	now := s.now()
	a := &Address{
		ID:          uuid.New().String(),
		UserID:      userID,
		FirstName:   in.FirstName,
		LastName:    in.LastName,
		PhoneNumber: in.PhoneNumber,
		Street:      in.Street,
		City:        in.City,
		State:       in.State,
		ZipCode:     in.ZipCode,
		Country:     in.Country,
		Default:     in.Default,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		if a.Default {
			if err := s.repo.ClearDefault(ctx, userID, a.ID); err != nil {
				return errors.Wrap(err, "clear default")
			}
		}
		return s.repo.Create(ctx, a)
	})
	if err != nil {
		return nil, errors.Wrap(err, "create address")
	}
	return a, nil
}

// List returns every address of userID.
func (s *Service) List(ctx context.Context, userID string) ([]Address, error) {
	return s.repo.List(ctx, userID)
}

// Default returns the default address of userID, or ErrNotFound.
func (s *Service) Default(ctx context.Context, userID string) (*Address, error) {
	list, err := s.repo.List(ctx, userID)
	if err != nil {
		return nil, err
	}
	for i := range list {
		if list[i].Default {
			return &list[i], nil
		}
	}
	return nil, ErrNotFound
}

// Update applies p to the address id of userID.
func (s *Service) Update(ctx context.Context, userID, id string, p Patch) (*Address, error) {
	if err := s.validator.Struct(p); err != nil {
		return nil, err
	}

	var a *Address
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		var err error
		a, err = s.repo.Get(ctx, userID, id)
		if err != nil {
			return err
		}
		p.apply(a)
		a.UpdatedAt = s.now()
		if a.Default {
			if err := s.repo.ClearDefault(ctx, userID, a.ID); err != nil {
				return errors.Wrap(err, "clear default")
			}
		}
		return s.repo.Update(ctx, a)
	})
	if err != nil {
		return nil, err
	}
	return a, nil
}

// Delete removes the address id of userID.
func (s *Service) Delete(ctx context.Context, userID, id string) error {
	return s.repo.Delete(ctx, userID, id)
}

func (p Patch) apply(a *Address) {
	set := func(dst *string, v *string) {
		if v != nil {
			*dst = *v
		}
	}
	set(&a.FirstName, p.FirstName)
	set(&a.LastName, p.LastName)
	set(&a.PhoneNumber, p.PhoneNumber)
	set(&a.Street, p.Street)
	set(&a.City, p.City)
	set(&a.State, p.State)
	set(&a.ZipCode, p.ZipCode)
	set(&a.Country, p.Country)
	if p.Default != nil {
		a.Default = *p.Default
	}
}
