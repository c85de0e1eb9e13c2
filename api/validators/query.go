package validators

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/sacrednumerology/sacred-backend/pkg/enums"
	pkgerrors "github.com/sacrednumerology/sacred-backend/pkg/errors"
)

func queryValue(r *http.Request, key string) string {
	return strings.TrimSpace(r.URL.Query().Get(key))
}

func queryError(key, message string, extra map[string]any) error {
	details := map[string]any{"field": key}
	for k, v := range extra {
		details[k] = v
	}
	return pkgerrors.New(pkgerrors.CodeValidation, message).WithDetails(details)
}

// ParseQueryInt returns def when the parameter is absent and rejects values
// outside [min, max].
func ParseQueryInt(r *http.Request, key string, def, min, max int) (int, error) {
	raw := queryValue(r, key)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, queryError(key, "query parameter must be numeric", nil)
	}
	if n < min || n > max {
		return 0, queryError(key, "query parameter out of range", map[string]any{"min": min, "max": max})
	}
	return n, nil
}

// optionalEnum parses an optional filter; nil means "no filter".
func optionalEnum[T any](r *http.Request, key, message string, parse func(string) (T, error)) (*T, error) {
	raw := queryValue(r, key)
	if raw == "" {
		return nil, nil
	}
	v, err := parse(strings.ToLower(raw))
	if err != nil {
		return nil, queryError(key, message, nil)
	}
	return &v, nil
}

func ParseQueryKind(r *http.Request, key string) (*enums.ProductKind, error) {
	return optionalEnum(r, key, "unknown product kind", enums.ParseProductKind)
}

func ParseQueryStatus(r *http.Request, key string) (*enums.PurchaseStatus, error) {
	return optionalEnum(r, key, "unknown purchase status", enums.ParsePurchaseStatus)
}
