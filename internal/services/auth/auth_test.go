package services_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	customjwt "github.com/magabrotheeeer/vpn-access/internal/lib/jwt"
	"github.com/magabrotheeeer/vpn-access/internal/lib/password"
	"github.com/magabrotheeeer/vpn-access/internal/models"
	services "github.com/magabrotheeeer/vpn-access/internal/services/auth"
)

// Мок для AccountRepository
type AccountRepoMock struct {
	mock.Mock
}

func (m *AccountRepoMock) CreateAccount(ctx context.Context, acc models.Account) (*models.Account, error) {
	args := m.Called(ctx, acc)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Account), args.Error(1)
}

func (m *AccountRepoMock) GetAccountByEmail(ctx context.Context, email string) (*models.Account, error) {
	args := m.Called(ctx, email)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Account), args.Error(1)
}

func (m *AccountRepoMock) GetAccountByID(ctx context.Context, id int64) (*models.Account, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Account), args.Error(1)
}

func (m *AccountRepoMock) ApplyUpgrade(ctx context.Context, id int64, up models.Upgrade) (*models.Account, bool, error) {
	args := m.Called(ctx, id, up)
	if args.Get(0) == nil {
		return nil, false, args.Error(2)
	}
	return args.Get(0).(*models.Account), args.Bool(1), args.Error(2)
}

func (m *AccountRepoMock) SetVPNConfigRef(ctx context.Context, id int64, ref string) error {
	args := m.Called(ctx, id, ref)
	return args.Error(0)
}

// Мок для jwt.Maker
type JwtMakerMock struct {
	mock.Mock
}

func (m *JwtMakerMock) GenerateToken(acc *models.Account) (string, error) {
	args := m.Called(acc)
	return args.String(0), args.Error(1)
}

func (m *JwtMakerMock) ParseToken(token string) (*customjwt.CustomClaims, error) {
	args := m.Called(token)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*customjwt.CustomClaims), args.Error(1)
}

// Мок для provisioning.Service
type ProfilesMock struct {
	mock.Mock
}

func (m *ProfilesMock) IssueProfile(ctx context.Context, acc *models.Account) (string, error) {
	args := m.Called(ctx, acc)
	return args.String(0), args.Error(1)
}

func (m *ProfilesMock) FetchProfileContent(ctx context.Context, ref string) ([]byte, error) {
	args := m.Called(ctx, ref)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]byte), args.Error(1)
}

func newNoopLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

var testNow = time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)

func newService(repo *AccountRepoMock, maker *JwtMakerMock, profiles *ProfilesMock, allowUpgrade bool) *services.AuthService {
	return services.NewAuthService(newNoopLogger(), repo, maker, profiles, services.Settings{
		TrialDuration:    7 * 24 * time.Hour,
		AllowSelfUpgrade: allowUpgrade,
		Now:              func() time.Time { return testNow },
	})
}

func TestAuthService_Register(t *testing.T) {
	wantExpiry := testNow.Add(7 * 24 * time.Hour)
	created := &models.Account{ID: 1, Email: "test@example.com", Tier: models.TierTrial, TrialExpiresAt: &wantExpiry}

	tests := []struct {
		name       string
		setupMocks func(r *AccountRepoMock, p *ProfilesMock)
		wantRef    string
		wantErr    error
	}{
		{
			name: "successful registration",
			setupMocks: func(r *AccountRepoMock, p *ProfilesMock) {
				r.On("CreateAccount", mock.Anything, mock.MatchedBy(func(acc models.Account) bool {
					return acc.Email == "test@example.com" &&
						acc.PasswordHash != "" &&
						acc.PasswordHash != "password123" &&
						acc.Tier == models.TierTrial &&
						acc.TrialExpiresAt != nil && acc.TrialExpiresAt.Equal(wantExpiry)
				})).Return(created, nil).Once()
				p.On("IssueProfile", mock.Anything, created).Return("/etc/wireguard/clients/test.conf", nil).Once()
				r.On("SetVPNConfigRef", mock.Anything, int64(1), "/etc/wireguard/clients/test.conf").Return(nil).Once()
			},
			wantRef: "/etc/wireguard/clients/test.conf",
		},
		{
			name: "provisioning failure keeps account",
			setupMocks: func(r *AccountRepoMock, p *ProfilesMock) {
				r.On("CreateAccount", mock.Anything, mock.Anything).Return(&models.Account{ID: 1, Email: "test@example.com"}, nil).Once()
				p.On("IssueProfile", mock.Anything, mock.Anything).Return("", errors.New("wg down")).Once()
			},
			wantRef: "",
		},
		{
			name: "duplicate email",
			setupMocks: func(r *AccountRepoMock, _ *ProfilesMock) {
				r.On("CreateAccount", mock.Anything, mock.Anything).Return(nil, models.ErrDuplicateEmail).Once()
			},
			wantErr: models.ErrDuplicateEmail,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := new(AccountRepoMock)
			profiles := new(ProfilesMock)
			svc := newService(repo, new(JwtMakerMock), profiles, false)
			tt.setupMocks(repo, profiles)

			acc, err := svc.Register(context.Background(), "test@example.com", "password123")
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Nil(t, acc)
			} else {
				require.NoError(t, err)
				assert.Equal(t, tt.wantRef, acc.VPNConfigRef)
			}

			repo.AssertExpectations(t)
			profiles.AssertExpectations(t)
		})
	}
}

func TestAuthService_Login(t *testing.T) {
	rawPassword := "correctpassword"
	hashedPassword, err := password.GetHash(rawPassword)
	require.NoError(t, err)

	active := testNow.Add(time.Hour)
	expired := testNow.Add(-time.Second)
	trialUser := &models.Account{ID: 1, Email: "test@example.com", PasswordHash: hashedPassword, Tier: models.TierTrial, TrialExpiresAt: &active}
	expiredUser := &models.Account{ID: 2, Email: "old@example.com", PasswordHash: hashedPassword, Tier: models.TierTrial, TrialExpiresAt: &expired}
	vipUser := &models.Account{ID: 3, Email: "vip@example.com", PasswordHash: hashedPassword, Tier: models.TierVIP}

	tests := []struct {
		name       string
		email      string
		password   string
		setupMocks func(r *AccountRepoMock, j *JwtMakerMock)
		wantToken  string
		wantErr    error
	}{
		{
			name:     "successful login",
			email:    "test@example.com",
			password: rawPassword,
			setupMocks: func(r *AccountRepoMock, j *JwtMakerMock) {
				r.On("GetAccountByEmail", mock.Anything, "test@example.com").Return(trialUser, nil).Once()
				j.On("GenerateToken", trialUser).Return("jwt-token-123", nil).Once()
			},
			wantToken: "jwt-token-123",
		},
		{
			name:     "vip ignores trial expiry",
			email:    "vip@example.com",
			password: rawPassword,
			setupMocks: func(r *AccountRepoMock, j *JwtMakerMock) {
				r.On("GetAccountByEmail", mock.Anything, "vip@example.com").Return(vipUser, nil).Once()
				j.On("GenerateToken", vipUser).Return("jwt-vip", nil).Once()
			},
			wantToken: "jwt-vip",
		},
		{
			name:     "unknown email",
			email:    "nobody@example.com",
			password: rawPassword,
			setupMocks: func(r *AccountRepoMock, _ *JwtMakerMock) {
				r.On("GetAccountByEmail", mock.Anything, "nobody@example.com").Return(nil, models.ErrAccountNotFound).Once()
			},
			wantErr: models.ErrInvalidCredentials,
		},
		{
			name:     "wrong password",
			email:    "test@example.com",
			password: "wrongpassword",
			setupMocks: func(r *AccountRepoMock, _ *JwtMakerMock) {
				r.On("GetAccountByEmail", mock.Anything, "test@example.com").Return(trialUser, nil).Once()
			},
			wantErr: models.ErrInvalidCredentials,
		},
		{
			name:     "expired trial with wrong password is a credential error",
			email:    "old@example.com",
			password: "wrongpassword",
			setupMocks: func(r *AccountRepoMock, _ *JwtMakerMock) {
				r.On("GetAccountByEmail", mock.Anything, "old@example.com").Return(expiredUser, nil).Once()
			},
			wantErr: models.ErrInvalidCredentials,
		},
		{
			name:     "expired trial",
			email:    "old@example.com",
			password: rawPassword,
			setupMocks: func(r *AccountRepoMock, _ *JwtMakerMock) {
				r.On("GetAccountByEmail", mock.Anything, "old@example.com").Return(expiredUser, nil).Once()
			},
			wantErr: models.ErrTrialExpired,
		},
		{
			name:     "token generation error",
			email:    "test@example.com",
			password: rawPassword,
			setupMocks: func(r *AccountRepoMock, j *JwtMakerMock) {
				r.On("GetAccountByEmail", mock.Anything, "test@example.com").Return(trialUser, nil).Once()
				j.On("GenerateToken", trialUser).Return("", errors.New("token error")).Once()
			},
			wantErr: errors.New("token error"),
		},
		{
			name:     "corrupt stored hash is an internal error",
			email:    "broken@example.com",
			password: rawPassword,
			setupMocks: func(r *AccountRepoMock, _ *JwtMakerMock) {
				r.On("GetAccountByEmail", mock.Anything, "broken@example.com").Return(&models.Account{
					ID: 4, Email: "broken@example.com", PasswordHash: "not-a-bcrypt-hash", Tier: models.TierTrial, TrialExpiresAt: &active,
				}, nil).Once()
			},
			wantErr: errors.New("hashedSecret too short"),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := new(AccountRepoMock)
			jwtMock := new(JwtMakerMock)
			svc := newService(repo, jwtMock, new(ProfilesMock), false)
			tt.setupMocks(repo, jwtMock)

			res, err := svc.Login(context.Background(), tt.email, tt.password)
			switch {
			case tt.wantErr == nil:
				require.NoError(t, err)
				assert.Equal(t, tt.wantToken, res.Token)
				assert.Equal(t, tt.email, res.Profile.Email)
			case errors.Is(tt.wantErr, models.ErrInvalidCredentials), errors.Is(tt.wantErr, models.ErrTrialExpired):
				assert.ErrorIs(t, err, tt.wantErr)
			default:
				assert.ErrorContains(t, err, tt.wantErr.Error())
				assert.NotErrorIs(t, err, models.ErrInvalidCredentials)
			}

			repo.AssertExpectations(t)
			jwtMock.AssertExpectations(t)
		})
	}
}

func TestAuthService_ValidateToken(t *testing.T) {
	live := &models.Account{ID: 5, Email: "live@example.com", Tier: models.TierVIP}

	tests := []struct {
		name       string
		token      string
		setupMocks func(r *AccountRepoMock, j *JwtMakerMock)
		wantErr    error
	}{
		{
			name:  "valid token loads live account",
			token: "valid",
			setupMocks: func(r *AccountRepoMock, j *JwtMakerMock) {
				// в токене снимок TRIAL, в базе уже VIP
				j.On("ParseToken", "valid").Return(&customjwt.CustomClaims{UserID: 5, Tier: models.TierTrial}, nil).Once()
				r.On("GetAccountByID", mock.Anything, int64(5)).Return(live, nil).Once()
			},
		},
		{
			name:       "missing token",
			token:      "",
			setupMocks: func(_ *AccountRepoMock, _ *JwtMakerMock) {},
			wantErr:    models.ErrTokenMissing,
		},
		{
			name:  "expired token",
			token: "expired",
			setupMocks: func(_ *AccountRepoMock, j *JwtMakerMock) {
				j.On("ParseToken", "expired").Return(nil, models.ErrTokenExpired).Once()
			},
			wantErr: models.ErrTokenExpired,
		},
		{
			name:  "invalid token",
			token: "garbage",
			setupMocks: func(_ *AccountRepoMock, j *JwtMakerMock) {
				j.On("ParseToken", "garbage").Return(nil, models.ErrTokenInvalid).Once()
			},
			wantErr: models.ErrTokenInvalid,
		},
		{
			name:  "account deleted",
			token: "orphan",
			setupMocks: func(r *AccountRepoMock, j *JwtMakerMock) {
				j.On("ParseToken", "orphan").Return(&customjwt.CustomClaims{UserID: 9}, nil).Once()
				r.On("GetAccountByID", mock.Anything, int64(9)).Return(nil, models.ErrAccountNotFound).Once()
			},
			wantErr: models.ErrAccountNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := new(AccountRepoMock)
			jwtMock := new(JwtMakerMock)
			svc := newService(repo, jwtMock, new(ProfilesMock), false)
			tt.setupMocks(repo, jwtMock)

			acc, err := svc.ValidateToken(context.Background(), tt.token)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Nil(t, acc)
			} else {
				require.NoError(t, err)
				assert.Equal(t, models.TierVIP, acc.Tier)
			}

			repo.AssertExpectations(t)
			jwtMock.AssertExpectations(t)
		})
	}
}

func TestAuthService_Status(t *testing.T) {
	future := testNow.Add(time.Hour)
	past := testNow.Add(-time.Hour)
	svc := newService(new(AccountRepoMock), new(JwtMakerMock), new(ProfilesMock), false)

	tests := []struct {
		name       string
		account    *models.Account
		wantState  models.EntitlementState
		wantPlan   string
		wantStatus string
	}{
		{"active trial", &models.Account{Tier: models.TierTrial, TrialExpiresAt: &future}, models.StateTrialActive, "Free Trial", "Active"},
		{"expired trial", &models.Account{Tier: models.TierTrial, TrialExpiresAt: &past}, models.StateTrialExpired, "Free Trial", "Expired"},
		{"vip", &models.Account{Tier: models.TierVIP}, models.StateVIP, "VIP Plan", "Active"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st := svc.Status(tt.account)
			assert.Equal(t, tt.wantState, st.State)
			assert.Equal(t, tt.wantPlan, st.Plan)
			assert.Equal(t, tt.wantStatus, st.Status)
		})
	}
}

func TestAuthService_Upgrade(t *testing.T) {
	acc := &models.Account{ID: 4, Tier: models.TierTrial}
	upgraded := &models.Account{ID: 4, Tier: models.TierVIP}

	t.Run("disabled", func(t *testing.T) {
		repo := new(AccountRepoMock)
		svc := newService(repo, new(JwtMakerMock), new(ProfilesMock), false)

		_, err := svc.Upgrade(context.Background(), acc)
		assert.ErrorIs(t, err, models.ErrUpgradeDisabled)
		repo.AssertNotCalled(t, "ApplyUpgrade", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("enabled and idempotent", func(t *testing.T) {
		repo := new(AccountRepoMock)
		svc := newService(repo, new(JwtMakerMock), new(ProfilesMock), true)
		repo.On("ApplyUpgrade", mock.Anything, int64(4), models.Upgrade{}).Return(upgraded, true, nil).Once()
		repo.On("ApplyUpgrade", mock.Anything, int64(4), models.Upgrade{}).Return(upgraded, false, nil).Once()

		for n := 0; n < 2; n++ {
			got, err := svc.Upgrade(context.Background(), acc)
			require.NoError(t, err)
			assert.Equal(t, models.TierVIP, got.Tier)
			assert.Nil(t, got.TrialExpiresAt)
		}
		repo.AssertExpectations(t)
	})
}

func TestAuthService_VPNConfig(t *testing.T) {
	tests := []struct {
		name         string
		account      *models.Account
		setupMocks   func(p *ProfilesMock)
		wantFilename string
		wantErr      error
	}{
		{
			name:    "profile issued",
			account: &models.Account{Email: "alice@example.com", VPNConfigRef: "/etc/wireguard/clients/alice.conf"},
			setupMocks: func(p *ProfilesMock) {
				p.On("FetchProfileContent", mock.Anything, "/etc/wireguard/clients/alice.conf").Return([]byte("[Interface]"), nil).Once()
			},
			wantFilename: "alice.conf",
		},
		{
			name:       "no ref",
			account:    &models.Account{Email: "bob@example.com"},
			setupMocks: func(_ *ProfilesMock) {},
			wantErr:    models.ErrNoVPNProfile,
		},
		{
			name:    "ref outside clients dir",
			account: &models.Account{Email: "eve@example.com", VPNConfigRef: "/etc/passwd"},
			setupMocks: func(p *ProfilesMock) {
				p.On("FetchProfileContent", mock.Anything, "/etc/passwd").Return(nil, models.ErrVPNProfileUnavailable).Once()
			},
			wantErr: models.ErrVPNProfileUnavailable,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			profiles := new(ProfilesMock)
			svc := newService(new(AccountRepoMock), new(JwtMakerMock), profiles, false)
			tt.setupMocks(profiles)

			cfg, err := svc.VPNConfig(context.Background(), tt.account)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantFilename, cfg.Filename)
			assert.NotEmpty(t, cfg.Content)
			profiles.AssertExpectations(t)
		})
	}
}
