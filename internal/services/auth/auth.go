// Package services содержит бизнес-логику аккаунтов: регистрацию, вход,
// проверку сессионных токенов и выдачу VPN-профиля.
package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/magabrotheeeer/vpn-access/internal/entitlement"
	"github.com/magabrotheeeer/vpn-access/internal/lib/jwt"
	"github.com/magabrotheeeer/vpn-access/internal/lib/password"
	"github.com/magabrotheeeer/vpn-access/internal/lib/sl"
	"github.com/magabrotheeeer/vpn-access/internal/metrics"
	"github.com/magabrotheeeer/vpn-access/internal/models"
	"github.com/magabrotheeeer/vpn-access/internal/provisioning"
)

// AccountRepository контракт хранилища аккаунтов.
type AccountRepository interface {
	CreateAccount(ctx context.Context, acc models.Account) (*models.Account, error)
	GetAccountByEmail(ctx context.Context, email string) (*models.Account, error)
	GetAccountByID(ctx context.Context, id int64) (*models.Account, error)
	ApplyUpgrade(ctx context.Context, id int64, up models.Upgrade) (*models.Account, bool, error)
	SetVPNConfigRef(ctx context.Context, id int64, ref string) error
}

// Settings параметры политики доступа.
type Settings struct {
	TrialDuration    time.Duration
	AllowSelfUpgrade bool
	Now              func() time.Time
}

// AuthService отвечает за регистрацию, вход и проверку токенов.
type AuthService struct {
	log      *slog.Logger
	accounts AccountRepository
	jwtMaker jwt.Maker
	profiles provisioning.Service
	settings Settings
}

// LoginResult токен и публичный профиль вошедшего аккаунта.
type LoginResult struct {
	Token   string
	Profile models.Profile
}

// Status текущее состояние доступа аккаунта.
type Status struct {
	Profile models.Profile
	State   models.EntitlementState
	Plan    string
	Status  string
}

// VPNConfig содержимое профиля и имя файла для скачивания.
type VPNConfig struct {
	Filename string
	Content  []byte
}

// NewAuthService создает новый экземпляр AuthService.
func NewAuthService(log *slog.Logger, accounts AccountRepository, jwtMaker jwt.Maker,
	profiles provisioning.Service, settings Settings) *AuthService {
	if settings.Now == nil {
		settings.Now = time.Now
	}
	return &AuthService{
		log:      log,
		accounts: accounts,
		jwtMaker: jwtMaker,
		profiles: profiles,
		settings: settings,
	}
}

func (s *AuthService) now() time.Time {
	return s.settings.Now().UTC()
}

// Register создаёт аккаунт на пробном периоде и выдаёт ему VPN-профиль.
//
// Ошибка провижининга не отменяет регистрацию: ссылка на профиль остаётся пустой.
func (s *AuthService) Register(ctx context.Context, email, rawPassword string) (*models.Account, error) {
	const op = "services.auth.Register"
	log := s.log.With(slog.String("op", op))

	hashed, err := password.GetHash(rawPassword)
	if err != nil {
		metrics.RegistrationsTotal.WithLabelValues(metrics.OutcomeFailure).Inc()
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	trialEnds := entitlement.NewTrial(s.now(), s.settings.TrialDuration)
	acc, err := s.accounts.CreateAccount(ctx, models.Account{
		Email:          email,
		PasswordHash:   hashed,
		Tier:           models.TierTrial,
		TrialExpiresAt: &trialEnds,
	})
	if err != nil {
		if errors.Is(err, models.ErrDuplicateEmail) {
			metrics.RegistrationsTotal.WithLabelValues(metrics.OutcomeDuplicate).Inc()
		} else {
			metrics.RegistrationsTotal.WithLabelValues(metrics.OutcomeFailure).Inc()
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	metrics.RegistrationsTotal.WithLabelValues(metrics.OutcomeSuccess).Inc()

	ref, err := s.profiles.IssueProfile(ctx, acc)
	if err != nil {
		log.Warn("failed to issue vpn profile", slog.Int64("account_id", acc.ID), sl.Err(err))
		return acc, nil
	}
	if err := s.accounts.SetVPNConfigRef(ctx, acc.ID, ref); err != nil {
		log.Warn("failed to save vpn profile ref", slog.Int64("account_id", acc.ID), sl.Err(err))
		return acc, nil
	}
	acc.VPNConfigRef = ref
	log.Info("account registered", slog.Int64("account_id", acc.ID))
	return acc, nil
}

// Login проверяет пароль и политику триала, затем выпускает токен.
//
// Неверный email и неверный пароль неразличимы для вызывающего.
func (s *AuthService) Login(ctx context.Context, email, rawPassword string) (*LoginResult, error) {
	const op = "services.auth.Login"

	acc, err := s.accounts.GetAccountByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, models.ErrAccountNotFound) {
			metrics.LoginsTotal.WithLabelValues("invalid_credentials").Inc()
			return nil, fmt.Errorf("%s: %w", op, models.ErrInvalidCredentials)
		}
		metrics.LoginsTotal.WithLabelValues(metrics.OutcomeFailure).Inc()
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if err := password.CompareHash(acc.PasswordHash, rawPassword); err != nil {
		if errors.Is(err, password.ErrMismatch) {
			metrics.LoginsTotal.WithLabelValues("invalid_credentials").Inc()
			return nil, fmt.Errorf("%s: %w", op, models.ErrInvalidCredentials)
		}
		// хеш в хранилище повреждён
		metrics.LoginsTotal.WithLabelValues(metrics.OutcomeFailure).Inc()
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if entitlement.State(acc, s.now()) == models.StateTrialExpired {
		metrics.LoginsTotal.WithLabelValues("trial_expired").Inc()
		return nil, fmt.Errorf("%s: %w", op, models.ErrTrialExpired)
	}

	token, err := s.jwtMaker.GenerateToken(acc)
	if err != nil {
		metrics.LoginsTotal.WithLabelValues(metrics.OutcomeFailure).Inc()
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	metrics.LoginsTotal.WithLabelValues(metrics.OutcomeSuccess).Inc()
	return &LoginResult{Token: token, Profile: acc.Profile()}, nil
}

// ValidateToken проверяет токен и загружает актуальный аккаунт.
//
// Снимок тарифа в токене не используется: решения принимаются по данным из хранилища.
func (s *AuthService) ValidateToken(ctx context.Context, token string) (*models.Account, error) {
	const op = "services.auth.ValidateToken"
	if token == "" {
		return nil, fmt.Errorf("%s: %w", op, models.ErrTokenMissing)
	}
	claims, err := s.jwtMaker.ParseToken(token)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	acc, err := s.accounts.GetAccountByID(ctx, claims.UserID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return acc, nil
}

// Status собирает данные для страницы статуса.
func (s *AuthService) Status(acc *models.Account) Status {
	state := entitlement.State(acc, s.now())
	return Status{
		Profile: acc.Profile(),
		State:   state,
		Plan:    entitlement.PlanLabel(acc),
		Status:  entitlement.StatusLabel(state),
	}
}

// Upgrade переводит аккаунт в VIP без оплаты, если это разрешено конфигом.
// Повторный вызов для VIP-аккаунта не ошибка.
func (s *AuthService) Upgrade(ctx context.Context, acc *models.Account) (*models.Account, error) {
	const op = "services.auth.Upgrade"
	if !s.settings.AllowSelfUpgrade {
		return nil, fmt.Errorf("%s: %w", op, models.ErrUpgradeDisabled)
	}
	updated, changed, err := s.accounts.ApplyUpgrade(ctx, acc.ID, models.Upgrade{})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if changed {
		metrics.UpgradesTotal.WithLabelValues("self_service").Inc()
		s.log.Info("account upgraded to vip",
			slog.String("op", op), slog.Int64("account_id", acc.ID), slog.String("source", "self_service"))
	}
	return updated, nil
}

// VPNConfig возвращает профиль аккаунта.
//
// Отсутствие ссылки даёт models.ErrNoVPNProfile, ошибки чтения профиля
// пробрасываются как есть.
func (s *AuthService) VPNConfig(ctx context.Context, acc *models.Account) (*VPNConfig, error) {
	const op = "services.auth.VPNConfig"
	if acc.VPNConfigRef == "" {
		return nil, fmt.Errorf("%s: %w", op, models.ErrNoVPNProfile)
	}
	content, err := s.profiles.FetchProfileContent(ctx, acc.VPNConfigRef)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &VPNConfig{
		Filename: provisioning.DownloadName(acc.VPNConfigRef, acc.Email),
		Content:  content,
	}, nil
}
