package service

import "errors"

var (
	ErrInvalidAadhaar     = errors.New("invalid aadhaar number")
	ErrInvalidPhone       = errors.New("invalid phone number")
	ErrInvalidInput       = errors.New("invalid input")
	ErrCitizenNotFound    = errors.New("citizen not found")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrUnknownDepartment  = errors.New("unknown department")
	ErrSessionExpired     = errors.New("session expired")
)
