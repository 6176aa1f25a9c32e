package domain

import "errors"

var (
	ErrOrderNotFound       = errors.New("order_not_found")
	ErrExternalIDImmutable = errors.New("external_order_id_immutable")
)
