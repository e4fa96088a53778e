package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"reflect"
	"strings"

	"github.com/example/ewaste-exchange/internal/apperr"
	"github.com/example/ewaste-exchange/internal/infrastructure/objectstore"
	"github.com/go-playground/validator/v10"
)

// maxMultipartMemory is how much of a multipart body is buffered before
// spilling to temp files.
const maxMultipartMemory = 32 << 20

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "" || name == "-" {
			return f.Name
		}
		return name
	})
	return v
}

func decodeJSON(r *http.Request, dest any) error {
	defer func() { _, _ = io.Copy(io.Discard, r.Body) }()
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dest); err != nil {
		if errors.Is(err, io.EOF) {
			return apperr.New(apperr.CodeValidation, "request body is required")
		}
		return apperr.Wrap(apperr.CodeValidation, err, "invalid request body").
			WithDetails(map[string]any{"error": err.Error()})
	}
	return validateStruct(dest)
}

func validateStruct(dest any) error {
	err := validate.Struct(dest)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return apperr.Wrap(apperr.CodeValidation, err, "validation failed")
	}
	details := make(map[string]string, len(fieldErrs))
	for _, fe := range fieldErrs {
		details[fe.Field()] = validationMessage(fe)
	}
	return apperr.New(apperr.CodeValidation, "validation failed").WithDetails(details)
}

func validationMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "min":
		return fmt.Sprintf("must be at least %s", fe.Param())
	case "max":
		return fmt.Sprintf("must be at most %s", fe.Param())
	case "email":
		return "must be a valid email"
	case "oneof":
		return fmt.Sprintf("must be one of: %s", fe.Param())
	case "gte":
		return fmt.Sprintf("must be at least %s", fe.Param())
	}
	return "is invalid"
}

func isMultipart(r *http.Request) bool {
	return strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data")
}

func parseMultipart(r *http.Request) error {
	if err := r.ParseMultipartForm(maxMultipartMemory); err != nil {
		return apperr.Wrap(apperr.CodeValidation, err, "invalid multipart form")
	}
	return nil
}

// readFile loads one uploaded part. Reading stops one byte past the upload
// limit so the object store can still report the file as too large.
func readFile(field string, fh *multipart.FileHeader) (objectstore.File, error) {
	f, err := fh.Open()
	if err != nil {
		return objectstore.File{}, apperr.Wrap(apperr.CodeValidation, err, "could not read upload")
	}
	defer f.Close()
	data, err := io.ReadAll(io.LimitReader(f, objectstore.MaxFileSize+1))
	if err != nil {
		return objectstore.File{}, apperr.Wrap(apperr.CodeValidation, err, "could not read upload")
	}
	return objectstore.File{Field: field, Name: fh.Filename, Data: data}, nil
}

// formFile returns the single file sent under field, or nil.
func formFile(r *http.Request, field string) (*objectstore.File, error) {
	if r.MultipartForm == nil {
		return nil, nil
	}
	headers := r.MultipartForm.File[field]
	if len(headers) == 0 {
		return nil, nil
	}
	f, err := readFile(field, headers[0])
	if err != nil {
		return nil, err
	}
	return &f, nil
}
