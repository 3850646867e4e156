package repository

import (
	"context"
	"errors"
	"fmt"

	"corruption-report-service/internal/model"
	"corruption-report-service/internal/store"
)

var ErrUserNotFound = errors.New("user not found")

type UserRepository struct {
	store store.DocumentStore
}

func NewUserRepository(s store.DocumentStore) *UserRepository {
	return &UserRepository{store: s}
}

// FindByID returns nil when no profile exists for uid.
func (r *UserRepository) FindByID(ctx context.Context, uid string) (*model.UserProfile, error) {
	doc, err := r.store.Get(ctx, CollectionUsers, uid)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	u := UserFromDocument(doc)
	return &u, nil
}

func (r *UserRepository) Upsert(ctx context.Context, u *model.UserProfile) error {
	return r.store.Set(ctx, CollectionUsers, u.UID, map[string]any{
		"email":    u.Email,
		"role":     string(u.Role),
		"disabled": u.Disabled,
	})
}

func (r *UserRepository) SetDisabled(ctx context.Context, uid string, disabled bool) error {
	err := r.store.Merge(ctx, CollectionUsers, uid, map[string]any{"disabled": disabled})
	if errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("%s: %w", uid, ErrUserNotFound)
	}
	return err
}

func (r *UserRepository) Delete(ctx context.Context, uid string) error {
	return r.store.Delete(ctx, CollectionUsers, uid)
}

func (r *UserRepository) FindAll(ctx context.Context) ([]model.UserProfile, error) {
	docs, err := r.store.Query(ctx, AllUsersQuery())
	if err != nil {
		return nil, err
	}
	return UsersFromDocuments(docs), nil
}

func AllUsersQuery() store.Query {
	return store.Query{Collection: CollectionUsers}
}

func UserFromDocument(doc store.Document) model.UserProfile {
	role := model.Role(doc.String("role"))
	if role == "" {
		role = model.RoleUser
	}
	return model.UserProfile{
		UID:      doc.ID,
		Email:    doc.String("email"),
		Role:     role,
		Disabled: doc.Bool("disabled"),
	}
}

func UsersFromDocuments(docs []store.Document) []model.UserProfile {
	users := make([]model.UserProfile, 0, len(docs))
	for _, d := range docs {
		users = append(users, UserFromDocument(d))
	}
	return users
}
