package accounts

import (
	"context"

	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

type EmailChanges interface {
	repository.Repository[*EmailChange]

	GetByConfirmationKey(ctx context.Context, key string) (*EmailChange, error)
	GetByConfirmationKeyTx(ctx context.Context, tx bun.IDB, key string) (*EmailChange, error)
	GetByUserIDTx(ctx context.Context, tx bun.IDB, userID uuid.UUID) (*EmailChange, error)
	DeleteForUserTx(ctx context.Context, tx bun.IDB, userID uuid.UUID) error
	Create(ctx context.Context, record *EmailChange, criteria ...repository.InsertCriteria) (*EmailChange, error)
	CreateTx(ctx context.Context, tx bun.IDB, record *EmailChange, criteria ...repository.InsertCriteria) (*EmailChange, error)
}

type emailChanges struct {
	repository.Repository[*EmailChange]
	db *bun.DB
}

var _ EmailChanges = (*emailChanges)(nil)

func NewEmailChangesRepository(db *bun.DB) EmailChanges {
	repo := repository.NewRepository[*EmailChange](db, repository.ModelHandlers[*EmailChange]{
		NewRecord: func() *EmailChange { return &EmailChange{} },
		GetID: func(e *EmailChange) uuid.UUID {
			if e == nil {
				return uuid.Nil
			}
			return e.ID
		},
		SetID: func(e *EmailChange, id uuid.UUID) {
			if e != nil {
				e.ID = id
			}
		},
	})

	return &emailChanges{
		Repository: repo,
		db:         db,
	}
}

func (a *emailChanges) Create(ctx context.Context, record *EmailChange, criteria ...repository.InsertCriteria) (*EmailChange, error) {
	return a.CreateTx(ctx, a.db, record, criteria...)
}

func (a *emailChanges) CreateTx(ctx context.Context, tx bun.IDB, record *EmailChange, criteria ...repository.InsertCriteria) (*EmailChange, error) {
	if record != nil && record.ID == uuid.Nil {
		record.ID = uuid.New()
	}
	return a.Repository.CreateTx(ctx, tx, record, criteria...)
}

func (a *emailChanges) GetByConfirmationKey(ctx context.Context, key string) (*EmailChange, error) {
	return a.GetByConfirmationKeyTx(ctx, a.db, key)
}

func (a *emailChanges) GetByConfirmationKeyTx(ctx context.Context, tx bun.IDB, key string) (*EmailChange, error) {
	record := &EmailChange{}
	err := tx.NewSelect().
		Model(record).
		Where("?TableAlias.confirmation_key = ?", key).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if repository.IsRecordNotFound(err) {
			return nil, repository.NewRecordNotFound().
				WithMetadata(map[string]any{
					"confirmation_key": key,
				})
		}
		return nil, err
	}

	return record, nil
}

func (a *emailChanges) GetByUserIDTx(ctx context.Context, tx bun.IDB, userID uuid.UUID) (*EmailChange, error) {
	record := &EmailChange{}
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

// DeleteForUserTx drops any pending change for the user. Requesting a new
// change calls this first, so the previous confirmation key dies with the row.
func (a *emailChanges) DeleteForUserTx(ctx context.Context, tx bun.IDB, userID uuid.UUID) error {
	_, err := tx.NewDelete().
		Model((*EmailChange)(nil)).
		Where("?TableAlias.user_id = ?", userID).
		Exec(ctx)
	return err
}
