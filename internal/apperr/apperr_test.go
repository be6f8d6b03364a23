package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindStatus(t *testing.T) {
	cases := map[Kind]int{
		KindValidation:        http.StatusBadRequest,
		KindUnauthorized:      http.StatusUnauthorized,
		KindMarketClosed:      http.StatusForbidden,
		KindInsufficientFunds: http.StatusBadRequest,
		KindNotFound:          http.StatusNotFound,
		KindInvalidState:      http.StatusBadRequest,
		KindInternal:          http.StatusInternalServerError,
	}
	for kind, want := range cases {
		assert.Equal(t, want, kind.Status(), string(kind))
	}
}

func TestIsMatchesKind(t *testing.T) {
	err := fmt.Errorf("close: %w", NotFound("position not found"))
	assert.True(t, errors.Is(err, ErrNotFound))
	assert.False(t, errors.Is(err, ErrInvalidState))
	assert.Equal(t, KindNotFound, KindOf(err))
	assert.Equal(t, "position not found", Message(err))
}

func TestInternalHidesCause(t *testing.T) {
	err := Internal(errors.New("connection refused"))
	assert.Equal(t, KindInternal, KindOf(err))
	assert.Equal(t, "internal error", Message(err))
	assert.Equal(t, "internal error", Message(errors.New("boom")))
	assert.Equal(t, KindInternal, KindOf(errors.New("boom")))
}

func TestMarketClosedMessage(t *testing.T) {
	assert.Equal(t, "Market is closed for STOCKS", MarketClosed("STOCKS").Error())
}
