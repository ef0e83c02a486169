// Package entitlement вычисляет состояние доступа пользователя и применяет
// переход на VIP. Состояние не хранится, а выводится из полей учётной записи
// и текущего времени, поэтому TRIAL_ACTIVE -> TRIAL_EXPIRED происходит без событий.
package entitlement

import (
	"time"

	"github.com/magabrotheeeer/vpn-access/internal/models"
)

// State возвращает текущее состояние доступа для момента now.
func State(acc *models.Account, now time.Time) models.EntitlementState {
	if IsVIP(acc) {
		return models.StateVIP
	}
	if acc.TrialExpiresAt != nil && now.After(*acc.TrialExpiresAt) {
		return models.StateTrialExpired
	}
	return models.StateTrialActive
}

// IsVIP сообщает, оплачен ли доступ.
func IsVIP(acc *models.Account) bool {
	return acc.Tier == models.TierVIP
}

// Apply переводит учётную запись в VIP. Повторное применение ничего не меняет,
// кроме заполнения ещё пустых ссылок провайдера. Возвращает true, если уровень изменился.
//
// Это эталонный переход для хранилищ в памяти. repository.ApplyUpgrade выполняет
// тот же переход одним SQL-запросом, и его тесты сверяют результат с Apply.
func Apply(acc *models.Account, up models.Upgrade) bool {
	changed := acc.Tier != models.TierVIP
	acc.Tier = models.TierVIP
	acc.TrialExpiresAt = nil
	if up.CustomerRef != "" {
		acc.PaymentCustomerRef = up.CustomerRef
	}
	if up.SubscriptionRef != "" {
		acc.PaymentSubscriptionRef = up.SubscriptionRef
	}
	return changed
}

// NewTrial возвращает окончание пробного периода для новой учётной записи.
func NewTrial(now time.Time, duration time.Duration) time.Time {
	return now.UTC().Add(duration)
}

// PlanLabel — название тарифа для ответа /user/status.
func PlanLabel(acc *models.Account) string {
	if IsVIP(acc) {
		return "VIP Plan"
	}
	return "Free Trial"
}

// StatusLabel — "Active" или "Expired" для ответа /user/status.
func StatusLabel(state models.EntitlementState) string {
	if state == models.StateTrialExpired {
		return "Expired"
	}
	return "Active"
}
