package mailprovider

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/ashureev/mailpilot/internal/shared"
	"github.com/stretchr/testify/assert"
	"golang.org/x/oauth2"
	"google.golang.org/api/googleapi"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want shared.Kind
	}{
		{"unauthorized", &googleapi.Error{Code: http.StatusUnauthorized}, shared.KindAuthRequired},
		{"forbidden", &googleapi.Error{Code: http.StatusForbidden}, shared.KindAuthRequired},
		{"not found", &googleapi.Error{Code: http.StatusNotFound}, shared.KindNotFound},
		{"server error", &googleapi.Error{Code: http.StatusServiceUnavailable}, shared.KindProvider},
		{"refresh rejected", fmt.Errorf("wrapped: %w", &oauth2.RetrieveError{}), shared.KindAuthRequired},
		{"network", errors.New("connection reset"), shared.KindProvider},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, shared.KindOf(classify("gmail.test", tt.err)))
		})
	}
	assert.NoError(t, classify("gmail.test", nil))
}

func TestTripsBreaker(t *testing.T) {
	assert.False(t, tripsBreaker(&googleapi.Error{Code: http.StatusBadRequest}))
	assert.False(t, tripsBreaker(&googleapi.Error{Code: http.StatusUnauthorized}))
	assert.False(t, tripsBreaker(&oauth2.RetrieveError{}))
	assert.True(t, tripsBreaker(&googleapi.Error{Code: http.StatusInternalServerError}))
	assert.True(t, tripsBreaker(errors.New("timeout")))
}
