package service

import "errors"

var (
	ErrIDRequired    = errors.New("id is required")
	ErrOwnerRequired = errors.New("owner is required")
	ErrNotFound      = errors.New("resource not found")
	ErrAccessDenied  = errors.New("access denied")
)
