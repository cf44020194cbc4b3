package service

import (
	"errors"

	"github.com/boddenberg/wallet-session-go/internal/domain"
)

// Normalize turns any failure into the single line shown to the user.
// Backend rejections yield their detail, error or message field, in that
// order; local validation failures yield their own message; everything else,
// and rejections without a usable field, yield fallback.
func Normalize(err error, fallback string) string {
	if err == nil {
		return fallback
	}

	var validation *domain.ErrValidation
	if errors.As(err, &validation) && validation.Message != "" {
		return validation.Message
	}

	var rejection *domain.ErrBackendRejection
	if errors.As(err, &rejection) {
		for _, candidate := range []string{
			rejection.Payload.Detail,
			rejection.Payload.Error,
			rejection.Payload.Message,
		} {
			if candidate != "" {
				return candidate
			}
		}
	}
	return fallback
}
