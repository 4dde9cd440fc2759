package domain

import "errors"

var (
	// ErrConfiguration возвращается при некорректных настройках распространителя.
	ErrConfiguration = errors.New("configuration error")
	// ErrDispatch возвращается, если бэкенд доставки сообщил об ошибке.
	ErrDispatch = errors.New("dispatch error")
	// ErrStorage возвращается при ошибке чтения или записи хранилища.
	ErrStorage = errors.New("storage error")
	// ErrNotFound возвращается, если запись не найдена.
	ErrNotFound = errors.New("not found")
)
