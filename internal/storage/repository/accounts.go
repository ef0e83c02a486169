package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/magabrotheeeer/vpn-access/internal/models"
)

const uniqueViolation = "23505"

const accountColumns = `id, email, password_hash, tier, trial_expires_at, vpn_config_ref,
		created_at, payment_customer_ref, payment_subscription_ref`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAccount(row rowScanner, extra ...any) (*models.Account, error) {
	var (
		acc       models.Account
		tier      string
		trialEnds sql.NullTime
	)
	dest := []any{&acc.ID, &acc.Email, &acc.PasswordHash, &tier, &trialEnds, &acc.VPNConfigRef,
		&acc.CreatedAt, &acc.PaymentCustomerRef, &acc.PaymentSubscriptionRef}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		return nil, err
	}
	acc.Tier = models.Tier(tier)
	acc.CreatedAt = acc.CreatedAt.UTC()
	if trialEnds.Valid {
		t := trialEnds.Time.UTC()
		acc.TrialExpiresAt = &t
	}
	return &acc, nil
}

// CreateAccount сохраняет новый аккаунт и возвращает его с присвоенным id.
//
// Занятый email возвращает models.ErrDuplicateEmail.
func (s *Storage) CreateAccount(ctx context.Context, acc models.Account) (*models.Account, error) {
	const op = "storage.CreateAccount"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `INSERT INTO accounts (email, password_hash, tier, trial_expires_at, vpn_config_ref)
			  VALUES ($1, $2, $3, $4, $5)
			  RETURNING ` + accountColumns
	created, err := scanAccount(s.DB.QueryRowContext(ctx, query,
		acc.Email, acc.PasswordHash, string(acc.Tier), acc.TrialExpiresAt, acc.VPNConfigRef))
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return nil, fmt.Errorf("%s: %w", op, models.ErrDuplicateEmail)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return created, nil
}

// GetAccountByEmail ищет аккаунт по точному совпадению email.
func (s *Storage) GetAccountByEmail(ctx context.Context, email string) (*models.Account, error) {
	const op = "storage.GetAccountByEmail"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `SELECT ` + accountColumns + ` FROM accounts WHERE email = $1`
	acc, err := scanAccount(s.DB.QueryRowContext(ctx, query, email))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%s: %w", op, models.ErrAccountNotFound)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return acc, nil
}

// GetAccountByID возвращает аккаунт по id.
func (s *Storage) GetAccountByID(ctx context.Context, id int64) (*models.Account, error) {
	const op = "storage.GetAccountByID"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `SELECT ` + accountColumns + ` FROM accounts WHERE id = $1`
	acc, err := scanAccount(s.DB.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%s: %w", op, models.ErrAccountNotFound)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return acc, nil
}

// ApplyUpgrade переводит аккаунт в VIP одним UPDATE.
//
// Срок триала обнуляется, платёжные ссылки пишутся только непустые.
// changed=false, если аккаунт уже был VIP и ссылки не поменялись.
func (s *Storage) ApplyUpgrade(ctx context.Context, id int64, up models.Upgrade) (*models.Account, bool, error) {
	const op = "storage.ApplyUpgrade"
	select {
	case <-ctx.Done():
		return nil, false, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `WITH prev AS (
				  SELECT id, tier, payment_customer_ref, payment_subscription_ref
				  FROM accounts WHERE id = $1 FOR UPDATE
			  )
			  UPDATE accounts a
			  SET tier = 'VIP',
			      trial_expires_at = NULL,
			      payment_customer_ref = COALESCE(NULLIF($2, ''), a.payment_customer_ref),
			      payment_subscription_ref = COALESCE(NULLIF($3, ''), a.payment_subscription_ref),
			      updated_at = NOW()
			  FROM prev
			  WHERE a.id = prev.id
			  RETURNING a.id, a.email, a.password_hash, a.tier, a.trial_expires_at, a.vpn_config_ref,
			      a.created_at, a.payment_customer_ref, a.payment_subscription_ref,
			      (prev.tier <> 'VIP'
			       OR prev.payment_customer_ref IS DISTINCT FROM a.payment_customer_ref
			       OR prev.payment_subscription_ref IS DISTINCT FROM a.payment_subscription_ref)`
	var changed bool
	acc, err := scanAccount(s.DB.QueryRowContext(ctx, query, id, up.CustomerRef, up.SubscriptionRef), &changed)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, false, fmt.Errorf("%s: %w", op, models.ErrAccountNotFound)
		}
		return nil, false, fmt.Errorf("%s: %w", op, err)
	}
	return acc, changed, nil
}

// SetVPNConfigRef сохраняет ссылку на выданный VPN-профиль.
func (s *Storage) SetVPNConfigRef(ctx context.Context, id int64, ref string) error {
	const op = "storage.SetVPNConfigRef"
	select {
	case <-ctx.Done():
		return fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	res, err := s.DB.ExecContext(ctx,
		`UPDATE accounts SET vpn_config_ref = $2, updated_at = NOW() WHERE id = $1`, id, ref)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if n == 0 {
		return fmt.Errorf("%s: %w", op, models.ErrAccountNotFound)
	}
	return nil
}

// FindTrialsExpiringBetween возвращает TRIAL-аккаунты со сроком в [from, to),
// которым ещё не отправлено напоминание.
func (s *Storage) FindTrialsExpiringBetween(ctx context.Context, from, to time.Time) ([]*models.Account, error) {
	const op = "storage.FindTrialsExpiringBetween"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `SELECT ` + accountColumns + `
			  FROM accounts
			  WHERE tier = 'TRIAL'
			    AND trial_expires_at >= $1
			    AND trial_expires_at < $2
			    AND trial_reminder_sent_at IS NULL
			  ORDER BY trial_expires_at`
	rows, err := s.DB.QueryContext(ctx, query, from, to)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var result []*models.Account
	for rows.Next() {
		acc, err := scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		result = append(result, acc)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return result, nil
}

// MarkTrialReminderSent отмечает, что напоминание об окончании триала отправлено.
func (s *Storage) MarkTrialReminderSent(ctx context.Context, id int64, at time.Time) error {
	const op = "storage.MarkTrialReminderSent"
	select {
	case <-ctx.Done():
		return fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	res, err := s.DB.ExecContext(ctx,
		`UPDATE accounts SET trial_reminder_sent_at = $2, updated_at = NOW() WHERE id = $1`, id, at.UTC())
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if n == 0 {
		return fmt.Errorf("%s: %w", op, models.ErrAccountNotFound)
	}
	return nil
}
