package sqlite

import (
	"context"

	"github.com/gatehouse-id/gatehouse/internal/broker/domain"
	"github.com/gatehouse-id/gatehouse/internal/broker/store"
)

type authenticatorsRepo struct {
	db dbtx
}

func (r *authenticatorsRepo) CreateAuthenticator(ctx context.Context, a domain.Authenticator) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO authenticators (id, user_id, type, label, secret, counter, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.UserID, a.Type, a.Label, a.Secret, a.Counter, a.CreatedAt)
	if isUniqueViolation(err) {
		return store.ErrAlreadyExists
	}
	return err
}

func (r *authenticatorsRepo) ListUserAuthenticators(ctx context.Context, userID int64) ([]domain.Authenticator, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, user_id, type, label, secret, counter, created_at
		FROM authenticators WHERE user_id = ?
		ORDER BY created_at ASC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Authenticator
	for rows.Next() {
		var a domain.Authenticator
		if err := rows.Scan(&a.ID, &a.UserID, &a.Type, &a.Label, &a.Secret, &a.Counter, &a.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (r *authenticatorsRepo) UpdateAuthenticatorCounter(ctx context.Context, id string, counter int64) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE authenticators SET counter = ? WHERE id = ?`, counter, id)
	return err
}

func (r *authenticatorsRepo) DeleteAuthenticator(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM authenticators WHERE id = ?`, id)
	return err
}
