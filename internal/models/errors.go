package models

import "errors"

// Domain errors. Callers match them with errors.Is.
var (
	ErrNotAuthenticated   = errors.New("not authenticated")
	ErrNotFound           = errors.New("not found")
	ErrInvalidAmount      = errors.New("amount must be a positive number")
	ErrInsufficientBudget = errors.New("amount exceeds remaining budget")
	ErrNotOwner           = errors.New("only the owner can do this")
	ErrCannotRemoveOwner  = errors.New("the group owner cannot be removed")
	ErrAlreadyShared      = errors.New("budget already shared with this group")
	ErrNotMember          = errors.New("not a member of this group")
	ErrEmptyName          = errors.New("name must not be empty")
	ErrEmptyMessage       = errors.New("message must not be empty")
	ErrInvalidInterval    = errors.New("unknown recurring interval")
	ErrInvalidEntryType   = errors.New("entry type must be income or expense")
	ErrInvalidDate        = errors.New("invalid date")
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrEmailExists        = errors.New("email already registered")
	ErrWeakPassword       = errors.New("password must be at least 8 characters")
	ErrPictureTooLarge    = errors.New("profile picture is too large")
	ErrInvalidPicture     = errors.New("profile picture must be base64 encoded")
)
