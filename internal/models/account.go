// Package models содержит доменную модель учётной записи VPN-сервиса,
// типы уровней доступа и сообщения, которыми обмениваются сервисы через RabbitMQ.
package models

import "time"

// Tier — хранимый уровень доступа пользователя.
type Tier string

const (
	// TierTrial — пробный период.
	TierTrial Tier = "TRIAL"
	// TierVIP — оплаченная подписка.
	TierVIP Tier = "VIP"
)

// EntitlementState — вычисляемое состояние доступа, в БД не хранится.
type EntitlementState string

const (
	// StateTrialActive — пробный период ещё идёт.
	StateTrialActive EntitlementState = "TRIAL_ACTIVE"
	// StateTrialExpired — пробный период закончился.
	StateTrialExpired EntitlementState = "TRIAL_EXPIRED"
	// StateVIP — оплаченный доступ.
	StateVIP EntitlementState = "VIP"
)

// Account представляет зарегистрированного пользователя VPN-сервиса.
type Account struct {
	ID                     int64      // Уникальный идентификатор, назначается БД
	Email                  string     // Электронная почта (уникальная, регистр сохраняется)
	PasswordHash           string     // bcrypt-хэш пароля, наружу не отдаётся
	Tier                   Tier       // TRIAL или VIP
	TrialExpiresAt         *time.Time // Окончание пробного периода, nil для VIP
	VPNConfigRef           string     // Ссылка на выданный VPN-профиль, может быть пустой
	CreatedAt              time.Time  // Дата создания
	PaymentCustomerRef     string     // ID покупателя у платёжного провайдера
	PaymentSubscriptionRef string     // ID подписки у платёжного провайдера
}

// Upgrade описывает переход TRIAL -> VIP. Пустые ссылки не перезаписывают уже сохранённые.
type Upgrade struct {
	CustomerRef     string
	SubscriptionRef string
}

// Profile — публичное представление учётной записи, безопасное для ответа клиенту.
type Profile struct {
	ID             int64      `json:"id"`
	Email          string     `json:"email"`
	Tier           Tier       `json:"tier"`
	IsVIP          bool       `json:"is_vip"`
	TrialExpiresAt *time.Time `json:"trial_expires_at"`
}

// Profile возвращает публичный профиль учётной записи.
func (a *Account) Profile() Profile {
	return Profile{
		ID:             a.ID,
		Email:          a.Email,
		Tier:           a.Tier,
		IsVIP:          a.Tier == TierVIP,
		TrialExpiresAt: a.TrialExpiresAt,
	}
}
