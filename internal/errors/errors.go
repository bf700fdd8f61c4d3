// internal/errors/errors.go
package appErrors

import (
	"errors"
	"fmt"
)

// ErrCampaignNotFound is returned when a referenced campaign does not exist.
type ErrCampaignNotFound struct {
	CampaignID int
}

func (e *ErrCampaignNotFound) Error() string {
	return fmt.Sprintf("campaign with ID %d not found", e.CampaignID)
}

// Helper constructor
func NewCampaignNotFound(id int) error {
	return &ErrCampaignNotFound{CampaignID: id}
}

// IsNotFound reports whether err, or anything it wraps, is a not-found error.
func IsNotFound(err error) bool {
	var nf *ErrCampaignNotFound
	return errors.As(err, &nf)
}

var (
	// ErrAlreadyExists is the expected outcome of creating a message for a
	// (campaign, user) pair that already has one. Callers skip it.
	ErrAlreadyExists = errors.New("message already exists")

	// ErrTransientDelivery marks a delivery attempt that may succeed if retried.
	ErrTransientDelivery = errors.New("transient delivery failure")
)
