package models

import "errors"

var (
	// ErrDuplicateEmail — почта уже зарегистрирована.
	ErrDuplicateEmail = errors.New("email already registered")
	// ErrAccountNotFound — учётная запись не найдена.
	ErrAccountNotFound = errors.New("account not found")
	// ErrInvalidCredentials — неверная почта или пароль.
	ErrInvalidCredentials = errors.New("invalid email or password")
	// ErrTrialExpired — пробный период истёк, вход запрещён.
	ErrTrialExpired = errors.New("free trial has expired")

	// ErrTokenMissing — токен не передан.
	ErrTokenMissing = errors.New("token is missing")
	// ErrTokenExpired — срок действия токена истёк.
	ErrTokenExpired = errors.New("token has expired")
	// ErrTokenInvalid — подпись или формат токена некорректны.
	ErrTokenInvalid = errors.New("token is invalid")

	// ErrNoVPNProfile — у пользователя нет VPN-профиля.
	ErrNoVPNProfile = errors.New("no vpn configuration found")
	// ErrVPNProfileUnavailable — профиль выдан, но прочитать его не удалось.
	ErrVPNProfileUnavailable = errors.New("vpn configuration could not be retrieved")
	// ErrUpgradeDisabled — ручной апгрейд выключен в конфиге.
	ErrUpgradeDisabled = errors.New("self-service upgrade is disabled")

	// ErrProvider — ошибка платёжного провайдера.
	ErrProvider = errors.New("payment provider error")
	// ErrInvalidPayload — тело вебхука не разбирается.
	ErrInvalidPayload = errors.New("invalid webhook payload")
	// ErrInvalidSignature — подпись вебхука не прошла проверку.
	ErrInvalidSignature = errors.New("invalid webhook signature")
)
