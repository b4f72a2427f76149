package catalog

import (
	"errors"
	"fmt"

	"github.com/MrWong99/waitlist/pkg/eve"
)

// Validate checks an [eve.Item] before it enters a catalog.
//
// Rules:
//   - ID must be positive.
//   - Name must be non-empty.
//   - Slot must be a recognised [eve.SlotType].
//   - Hull slot counts must not be negative.
func Validate(it eve.Item) error {
	var errs []error

	if it.ID <= 0 {
		errs = append(errs, errors.New("id must be positive"))
	}
	if it.Name == "" {
		errs = append(errs, errors.New("name must not be empty"))
	}
	if !it.Slot.IsValid() {
		errs = append(errs, fmt.Errorf("slot %q is not a recognised slot type", it.Slot))
	}
	if h := it.Hull; h != nil {
		if h.High < 0 || h.Mid < 0 || h.Low < 0 || h.Rig < 0 || h.Subsystem < 0 {
			errs = append(errs, errors.New("hull slot counts must not be negative"))
		}
	}

	return errors.Join(errs...)
}
