package db

import (
	"context"
	"fmt"
)

// Agreement is one tenant of the multi-tenant source system. Agreements are
// created by the registration flow and treated as read-only by the sync
// engine itself.
type Agreement struct {
	AgreementNumber string `db:"agreement_number"`
	GrantToken      string `db:"grant_token"`
	Name            string `db:"name"`
	Active          bool   `db:"active"`
}

// ActiveAgreements returns the active tenants in agreement-number order.
func (s *Store) ActiveAgreements(ctx context.Context) ([]Agreement, error) {
	rows, err := s.Query(ctx, agreementsActiveSQL)
	if err != nil {
		return nil, fmt.Errorf("failed to list active agreements: %w", err)
	}
	defer rows.Close()

	var agreements []Agreement
	for rows.Next() {
		var a Agreement
		if err := rows.StructScan(&a); err != nil {
			return nil, fmt.Errorf("failed to scan agreement row: %w", err)
		}
		agreements = append(agreements, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed reading agreement rows: %w", err)
	}
	return agreements, nil
}

// RegisterAgreement inserts or refreshes a tenant registration. Used by the
// token-registration surface, not by the sync passes.
func (s *Store) RegisterAgreement(ctx context.Context, a Agreement) error {
	_, err := s.Exec(ctx, agreementUpsertSQL, a.AgreementNumber, a.GrantToken, a.Name)
	if err != nil {
		return fmt.Errorf("failed to register agreement %s: %w", a.AgreementNumber, err)
	}
	return nil
}
