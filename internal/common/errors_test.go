package common

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"google.golang.org/grpc/codes"
)

func TestErrorMapping(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		kind     error
		status   int
		grpcCode codes.Code
		code     string
	}{
		{"unauthenticated", Unauthenticated("bad token"), ErrUnauthenticated, http.StatusUnauthorized, codes.Unauthenticated, CodeUnauthenticated},
		{"forbidden", Forbidden("not a participant"), ErrForbidden, http.StatusForbidden, codes.PermissionDenied, CodeForbidden},
		{"invalid", Invalid("empty content"), ErrInvalid, http.StatusBadRequest, codes.InvalidArgument, CodeInvalid},
		{"group full", InvalidCode(CodeGroupFull, "group is full"), ErrInvalid, http.StatusConflict, codes.FailedPrecondition, CodeGroupFull},
		{"already member", InvalidCode(CodeAlreadyMember, "already a member"), ErrInvalid, http.StatusConflict, codes.FailedPrecondition, CodeAlreadyMember},
		{"not found", NotFound("conversation %s not found", "abc"), ErrNotFound, http.StatusNotFound, codes.NotFound, CodeNotFound},
		{"wrapped", fmt.Errorf("load: %w", NotFound("gone")), ErrNotFound, http.StatusNotFound, codes.NotFound, CodeNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.True(t, errors.Is(tt.err, tt.kind))
			assert.Equal(t, tt.status, HTTPStatus(tt.err))
			assert.Equal(t, tt.grpcCode, GRPCCode(tt.err))
			assert.Equal(t, tt.code, ErrorCode(tt.err))
		})
	}
}

func TestPublicMessage_HidesInternalErrors(t *testing.T) {
	assert.Equal(t, "internal server error", PublicMessage(errors.New("dial tcp 10.0.0.1:3306: refused")))
	assert.Equal(t, http.StatusInternalServerError, HTTPStatus(errors.New("boom")))
	assert.Equal(t, "conversation abc not found", PublicMessage(NotFound("conversation %s not found", "abc")))
}

func TestNormalizeContent(t *testing.T) {
	got, err := NormalizeContent("  hello  ", 10)
	assert.NoError(t, err)
	assert.Equal(t, "hello", got)

	_, err = NormalizeContent("   ", 10)
	assert.ErrorIs(t, err, ErrInvalid)

	_, err = NormalizeContent("héllo wörld", 5)
	assert.ErrorIs(t, err, ErrInvalid)

	got, err = NormalizeContent("ééééé", 5)
	assert.NoError(t, err)
	assert.Equal(t, "ééééé", got)
}
