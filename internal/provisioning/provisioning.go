// Package provisioning выдаёт WireGuard-профили клиентам.
//
// Реальная генерация ключей не реализована: Stub формирует путь в каталоге
// клиентов и возвращает шаблонный профиль.
package provisioning

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/magabrotheeeer/vpn-access/internal/models"
)

// Service выдаёт профиль и отдаёт его содержимое по ссылке.
type Service interface {
	IssueProfile(ctx context.Context, acc *models.Account) (string, error)
	FetchProfileContent(ctx context.Context, ref string) ([]byte, error)
}

// Stub заглушка провижининга. Профили не пишутся на диск.
type Stub struct {
	clientsDir string
	endpoint   string
	dns        string
}

// NewStub создаёт заглушку для каталога clientsDir.
func NewStub(clientsDir, endpoint, dns string) *Stub {
	return &Stub{
		clientsDir: filepath.Clean(clientsDir),
		endpoint:   endpoint,
		dns:        dns,
	}
}

// IssueProfile возвращает ссылку <clientsDir>/<локальная часть email>.conf.
func (s *Stub) IssueProfile(ctx context.Context, acc *models.Account) (string, error) {
	const op = "provisioning.IssueProfile"
	select {
	case <-ctx.Done():
		return "", fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	name := ProfileName(acc.Email)
	if name == "" {
		// локальная часть непригодна для имени файла
		name = uuid.NewString()
	}
	return filepath.Join(s.clientsDir, name+".conf"), nil
}

// FetchProfileContent отдаёт текст профиля. Пустая ссылка даёт models.ErrNoVPNProfile,
// ссылка вне каталога клиентов models.ErrVPNProfileUnavailable.
func (s *Stub) FetchProfileContent(ctx context.Context, ref string) ([]byte, error) {
	const op = "provisioning.FetchProfileContent"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	if ref == "" {
		return nil, fmt.Errorf("%s: %w", op, models.ErrNoVPNProfile)
	}
	if !s.owns(ref) {
		return nil, fmt.Errorf("%s: %w: %s", op, models.ErrVPNProfileUnavailable, ref)
	}
	return []byte(fmt.Sprintf(profileTemplate, s.dns, s.endpoint)), nil
}

func (s *Stub) owns(ref string) bool {
	if ref == "" {
		return false
	}
	rel, err := filepath.Rel(s.clientsDir, filepath.Clean(ref))
	if err != nil {
		return false
	}
	return rel != "." && !strings.HasPrefix(rel, "..") && !strings.Contains(rel, string(filepath.Separator))
}

// ProfileName локальная часть email, очищенная для имени файла.
func ProfileName(email string) string {
	local, _, _ := strings.Cut(email, "@")
	var b strings.Builder
	for _, r := range local {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '-', r == '_', r == '+':
			b.WriteRune(r)
		}
	}
	name := strings.Trim(b.String(), ".")
	return name
}

// DownloadName имя файла для скачивания: база ссылки, если она оканчивается на .conf,
// иначе <локальная часть>.conf.
func DownloadName(ref, email string) string {
	if ref != "" {
		if base := filepath.Base(ref); strings.HasSuffix(base, ".conf") && base != ".conf" {
			return base
		}
	}
	name := ProfileName(email)
	if name == "" {
		name = "wireguard"
	}
	return name + ".conf"
}

const profileTemplate = `[Interface]
PrivateKey = FAKE_PRIVATE_KEY
Address = 10.0.0.X/24
DNS = %s

[Peer]
PublicKey = FAKE_SERVER_PUBLIC_KEY
AllowedIPs = 0.0.0.0/0
Endpoint = %s
`
