package exam

import (
	"context"
	"errors"
)

var (
	ErrNotFound = errors.New("not found")
	ErrConflict = errors.New("version conflict")
	ErrInvalid  = errors.New("invalid document")
)

// Store is the document store behind the bot. Users are create-once, tests
// are last-write-wins and registrations are versioned.
type Store interface {
	GetUser(ctx context.Context, id string) (User, error)
	// CreateUser fails with ErrConflict when the user already exists.
	CreateUser(ctx context.Context, u User) error

	PutTest(ctx context.Context, t Test) error
	GetTest(ctx context.Context, id string) (Test, error)
	// ListTests returns all tests ordered by creation time, then id.
	ListTests(ctx context.Context) ([]Test, error)

	GetRegistration(ctx context.Context, testID, userID string) (Registration, error)
	// ListRegistrations returns the registrations of a test ordered by
	// registration time, then user id.
	ListRegistrations(ctx context.Context, testID string) ([]Registration, error)
	// RegistrationCounts maps test id to its number of registrations.
	RegistrationCounts(ctx context.Context) (map[string]int, error)
	// SaveRegistrations writes regs as one batch. A registration with Version 0
	// is inserted; any other is updated only if the stored version matches.
	// On success every element's Version is advanced; on ErrConflict nothing
	// is written (SQL and memory backends).
	SaveRegistrations(ctx context.Context, regs ...*Registration) error

	Close() error
}

var (
	_ Store = (*memoryStore)(nil)
	_ Store = (*SQLStore)(nil)
	_ Store = (*MongoStore)(nil)
)
