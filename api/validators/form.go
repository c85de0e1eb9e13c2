package validators

import (
	"errors"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	"github.com/google/uuid"

	pkgerrors "github.com/sacrednumerology/sacred-backend/pkg/errors"
)

// multipartOverhead leaves room for the text fields next to the file part.
const multipartOverhead = 1 << 20

// ValidateStruct runs the struct tags of dest through the shared validator.
func ValidateStruct(dest any) error {
	if err := validate.Struct(dest); err != nil {
		return formatValidationErrors(err)
	}
	return nil
}

// MultipartLimit is the whole-body cap for a form holding one file of at most
// maxFileBytes.
func MultipartLimit(maxFileBytes int64) int64 {
	return maxFileBytes + multipartOverhead
}

// ParseMultipart caps the request body and parses a multipart form holding one file
// of at most maxFileBytes.
func ParseMultipart(w http.ResponseWriter, r *http.Request, maxFileBytes int64) error {
	limit := MultipartLimit(maxFileBytes)
	r.Body = http.MaxBytesReader(w, r.Body, limit)
	if err := r.ParseMultipartForm(limit); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return pkgerrors.New(pkgerrors.CodeValidation, "upload too large").WithDetails(map[string]any{"maxBytes": maxFileBytes})
		}
		return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid multipart form")
	}
	return nil
}

// FormFile returns the named file part. The caller closes it.
func FormFile(r *http.Request, field string) (multipart.File, *multipart.FileHeader, error) {
	file, header, err := r.FormFile(field)
	if err != nil {
		if errors.Is(err, http.ErrMissingFile) {
			return nil, nil, pkgerrors.New(pkgerrors.CodeValidation, "validation failed").WithDetails(map[string]string{field: "is required"})
		}
		return nil, nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid file part")
	}
	return file, header, nil
}

// FormValue reads a sanitized text field.
func FormValue(r *http.Request, field string) string {
	return SanitizeString(r.FormValue(field))
}

// FormBool reads a checkbox style field. Absent means false.
func FormBool(r *http.Request, field string) (bool, error) {
	raw := strings.TrimSpace(r.FormValue(field))
	if raw == "" {
		return false, nil
	}
	if raw == "on" {
		return true, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, pkgerrors.New(pkgerrors.CodeValidation, "validation failed").WithDetails(map[string]string{field: "must be a boolean"})
	}
	return v, nil
}

// ParseUUID parses an identifier taken from a path, query or form field.
func ParseUUID(raw, field string) (uuid.UUID, error) {
	id, err := uuid.Parse(strings.TrimSpace(raw))
	if err != nil {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeValidation, "validation failed").WithDetails(map[string]string{field: "must be a valid id"})
	}
	return id, nil
}
