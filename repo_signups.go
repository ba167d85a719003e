package accounts

import (
	"context"

	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

type Signups interface {
	repository.Repository[*Signup]

	GetByActivationKey(ctx context.Context, key string) (*Signup, error)
	GetByActivationKeyTx(ctx context.Context, tx bun.IDB, key string) (*Signup, error)
	GetByUserIDTx(ctx context.Context, tx bun.IDB, userID uuid.UUID) (*Signup, error)
	DeleteByUserIDTx(ctx context.Context, tx bun.IDB, userID uuid.UUID) error
	Create(ctx context.Context, record *Signup, criteria ...repository.InsertCriteria) (*Signup, error)
	CreateTx(ctx context.Context, tx bun.IDB, record *Signup, criteria ...repository.InsertCriteria) (*Signup, error)
}

type signups struct {
	repository.Repository[*Signup]
	db *bun.DB
}

var _ Signups = (*signups)(nil)

func NewSignupsRepository(db *bun.DB) Signups {
	repo := repository.NewRepository[*Signup](db, repository.ModelHandlers[*Signup]{
		NewRecord: func() *Signup { return &Signup{} },
		GetID: func(s *Signup) uuid.UUID {
			if s == nil {
				return uuid.Nil
			}
			return s.ID
		},
		SetID: func(s *Signup, id uuid.UUID) {
			if s != nil {
				s.ID = id
			}
		},
	})

	return &signups{
		Repository: repo,
		db:         db,
	}
}

func (a *signups) Create(ctx context.Context, record *Signup, criteria ...repository.InsertCriteria) (*Signup, error) {
	return a.CreateTx(ctx, a.db, record, criteria...)
}

func (a *signups) CreateTx(ctx context.Context, tx bun.IDB, record *Signup, criteria ...repository.InsertCriteria) (*Signup, error) {
	if record != nil && record.ID == uuid.Nil {
		record.ID = uuid.New()
	}
	return a.Repository.CreateTx(ctx, tx, record, criteria...)
}

func (a *signups) GetByActivationKey(ctx context.Context, key string) (*Signup, error) {
	return a.GetByActivationKeyTx(ctx, a.db, key)
}

func (a *signups) GetByActivationKeyTx(ctx context.Context, tx bun.IDB, key string) (*Signup, error) {
	record := &Signup{}
	err := tx.NewSelect().
		Model(record).
		Where("?TableAlias.activation_key = ?", key).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if repository.IsRecordNotFound(err) {
			return nil, repository.NewRecordNotFound().
				WithMetadata(map[string]any{
					"activation_key": key,
				})
		}
		return nil, err
	}

	return record, nil
}

func (a *signups) GetByUserIDTx(ctx context.Context, tx bun.IDB, userID uuid.UUID) (*Signup, error) {
	record := &Signup{}
	err := tx.NewSelect().
		Model(record).
		Where("?TableAlias.user_id = ?", userID).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if repository.IsRecordNotFound(err) {
			return nil, repository.NewRecordNotFound().
				WithMetadata(map[string]any{
					"user_id": userID.String(),
				})
		}
		return nil, err
	}

	return record, nil
}

// DeleteByUserIDTx removes any pending activation rows for the user. A miss
// is not an error, callers use it to guarantee at most one live key.
func (a *signups) DeleteByUserIDTx(ctx context.Context, tx bun.IDB, userID uuid.UUID) error {
	_, err := tx.NewDelete().
		Model((*Signup)(nil)).
		Where("?TableAlias.user_id = ?", userID).
		Exec(ctx)
	return err
}
