package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/Proton-105/craft-bot/internal/database"
	"github.com/Proton-105/craft-bot/internal/domain"
)

// FormRepository stores applications, SOS requests, support tickets and reads offers.
type FormRepository interface {
	InsertApplication(ctx context.Context, a *domain.Application) error
	InsertSOS(ctx context.Context, s *domain.SOSRequest) error
	InsertSupport(ctx context.Context, t *domain.SupportTicket) error
	ActiveOffers(ctx context.Context) ([]domain.Offer, error)
}

type formRepository struct {
	q database.Querier
}

func NewFormRepository(q database.Querier) FormRepository {
	return &formRepository{q: q}
}

func (r *formRepository) InsertApplication(ctx context.Context, a *domain.Application) error {
	payload, err := json.Marshal(a.FormData)
	if err != nil {
		return fmt.Errorf("marshal form data: %w", err)
	}
	if err := r.q.QueryRowContext(ctx, `
		INSERT INTO applications (user_id, form_data, status, created_at) VALUES ($1, $2, 'pending', $3)
		RETURNING id`, a.UserID, string(payload), a.CreatedAt).Scan(&a.ID); err != nil {
		return fmt.Errorf("insert application: %w", err)
	}
	a.Status = "pending"
	return nil
}

func (r *formRepository) InsertSOS(ctx context.Context, s *domain.SOSRequest) error {
	if err := r.q.QueryRowContext(ctx, `
		INSERT INTO sos_requests (user_id, city, contact, description, created_at) VALUES ($1, $2, $3, $4, $5)
		RETURNING id`, s.UserID, s.City, s.Contact, s.Description, s.CreatedAt).Scan(&s.ID); err != nil {
		return fmt.Errorf("insert sos request: %w", err)
	}
	return nil
}

func (r *formRepository) InsertSupport(ctx context.Context, t *domain.SupportTicket) error {
	if err := r.q.QueryRowContext(ctx, `
		INSERT INTO support_tickets (user_id, message, created_at) VALUES ($1, $2, $3)
		RETURNING id`, t.UserID, t.Message, t.CreatedAt).Scan(&t.ID); err != nil {
		return fmt.Errorf("insert support ticket: %w", err)
	}
	return nil
}

func (r *formRepository) ActiveOffers(ctx context.Context) ([]domain.Offer, error) {
	rows, err := r.q.QueryContext(ctx, `
		SELECT id, category, description, rate_from, rate_to FROM offers
		WHERE is_active = TRUE ORDER BY category, id`)
	if err != nil {
		return nil, fmt.Errorf("select offers: %w", err)
	}
	defer rows.Close()

	var out []domain.Offer
	for rows.Next() {
		var o domain.Offer
		if err := rows.Scan(&o.ID, &o.Category, &o.Description, &o.RateFrom, &o.RateTo); err != nil {
			return nil, fmt.Errorf("scan offer: %w", err)
		}
		out = append(out, o)
	}
	return out, rows.Err()
}
