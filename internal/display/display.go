package display

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"concretesync/internal/model"
)

// Permission 平台级展示权限
type Permission string

const (
	PermissionGranted Permission = "granted"
	PermissionDenied  Permission = "denied"
	PermissionDefault Permission = "default"
)

type Options struct {
	RecordID           uuid.UUID
	Body               string
	Tag                string
	Category           model.Category
	RequireInteraction bool
	Data               map[string]any
}

// Handle closes a shown notification.
type Handle interface {
	Close(ctx context.Context) error
}

// Display is a platform that can show notifications.
type Display interface {
	RequestPermission(ctx context.Context) (Permission, error)
	Show(ctx context.Context, title string, opts Options) (Handle, error)
}

// Fanout shows on every member display whose permission is granted.
type Fanout struct {
	displays []Display
}

func NewFanout(displays ...Display) *Fanout {
	return &Fanout{displays: displays}
}

// RequestPermission is granted when any member grants; denied when none grants and one denies.
func (f *Fanout) RequestPermission(ctx context.Context) (Permission, error) {
	result := PermissionDefault
	var errs []error
	for _, d := range f.displays {
		p, err := d.RequestPermission(ctx)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		switch p {
		case PermissionGranted:
			return PermissionGranted, nil
		case PermissionDenied:
			result = PermissionDenied
		}
	}
	return result, errors.Join(errs...)
}

func (f *Fanout) Show(ctx context.Context, title string, opts Options) (Handle, error) {
	var handles multiHandle
	var errs []error
	for _, d := range f.displays {
		p, err := d.RequestPermission(ctx)
		if err != nil || p != PermissionGranted {
			continue
		}
		h, err := d.Show(ctx, title, opts)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		handles = append(handles, h)
	}
	if len(handles) == 0 && len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return handles, errors.Join(errs...)
}

type multiHandle []Handle

func (m multiHandle) Close(ctx context.Context) error {
	var errs []error
	for _, h := range m {
		if err := h.Close(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
