package middleware

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/omni/bridge-relayer/presenter/http/render"
)

type ctxKey int

const (
	recordIDCtxKey ctxKey = iota
	externalIDCtxKey
	participantCtxKey
	paginationCtxKey
)

const (
	DefaultPageLimit = 50
	MaxPageLimit     = 500
)

var (
	ErrInvalidRecordID   = errors.New("invalid record id")
	ErrInvalidExternalID = errors.New("invalid external id")
	ErrInvalidAddress    = errors.New("invalid address")
	ErrInvalidPagination = errors.New("invalid pagination parameters")
)

type Pagination struct {
	Limit  uint
	Offset uint
}

func GetRecordIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			render.Status(w, r, http.StatusBadRequest, fmt.Errorf("%w: %s", ErrInvalidRecordID, err))
			return
		}

		ctx := context.WithValue(r.Context(), recordIDCtxKey, id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func RecordID(ctx context.Context) uuid.UUID {
	if id, ok := ctx.Value(recordIDCtxKey).(uuid.UUID); ok {
		return id
	}
	return uuid.Nil
}

func GetExternalIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw := chi.URLParam(r, "externalId")
		if len(common.FromHex(raw)) != common.HashLength {
			render.Status(w, r, http.StatusBadRequest, fmt.Errorf("%w: %q", ErrInvalidExternalID, raw))
			return
		}

		ctx := context.WithValue(r.Context(), externalIDCtxKey, common.HexToHash(raw))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func ExternalID(ctx context.Context) common.Hash {
	if id, ok := ctx.Value(externalIDCtxKey).(common.Hash); ok {
		return id
	}
	return common.Hash{}
}

func GetParticipantMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw := chi.URLParam(r, "address")
		if !common.IsHexAddress(raw) {
			render.Status(w, r, http.StatusBadRequest, fmt.Errorf("%w: %q", ErrInvalidAddress, raw))
			return
		}

		ctx := context.WithValue(r.Context(), participantCtxKey, common.HexToAddress(raw))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func Participant(ctx context.Context) common.Address {
	if addr, ok := ctx.Value(participantCtxKey).(common.Address); ok {
		return addr
	}
	return common.Address{}
}

func GetPaginationMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		query := r.URL.Query()
		page := &Pagination{Limit: DefaultPageLimit}

		if limitStr := query.Get("limit"); limitStr != "" {
			limit, err := strconv.ParseUint(limitStr, 10, 32)
			if err != nil || limit == 0 || limit > MaxPageLimit {
				render.Status(w, r, http.StatusBadRequest, fmt.Errorf("%w: limit should be between 1 and %d", ErrInvalidPagination, MaxPageLimit))
				return
			}
			page.Limit = uint(limit)
		}
		if offsetStr := query.Get("offset"); offsetStr != "" {
			offset, err := strconv.ParseUint(offsetStr, 10, 32)
			if err != nil {
				render.Status(w, r, http.StatusBadRequest, fmt.Errorf("%w: failed to parse offset", ErrInvalidPagination))
				return
			}
			page.Offset = uint(offset)
		}

		ctx := context.WithValue(r.Context(), paginationCtxKey, page)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func GetPagination(ctx context.Context) *Pagination {
	if page, ok := ctx.Value(paginationCtxKey).(*Pagination); ok {
		return page
	}
	return &Pagination{Limit: DefaultPageLimit}
}
