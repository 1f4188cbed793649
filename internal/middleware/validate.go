package middleware

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
)

// PayloadValidator checks a raw body against a named schema.
// *validation.SchemaValidator implements it.
type PayloadValidator interface {
	Validate(schema string, payload []byte) error
}

// ValidateBody rejects requests whose body does not satisfy schema. A
// form-encoded body is checked as the JSON object of its fields, the same
// fields BodyFields returns. The body is restored for the next handler.
func ValidateBody(v PayloadValidator, schema string, onInvalid func(w http.ResponseWriter, r *http.Request, err error)) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var body []byte
			if r.Body != nil {
				var err error
				body, err = io.ReadAll(io.LimitReader(r.Body, MaxBodyBytes))
				if err != nil {
					onInvalid(w, r, err)
					return
				}
				_ = r.Body.Close()
			}
			r.Body = io.NopCloser(bytes.NewReader(body))

			payload, err := validationPayload(r, body)
			if err != nil {
				onInvalid(w, r, err)
				return
			}
			if err := v.Validate(schema, payload); err != nil {
				onInvalid(w, r, err)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func validationPayload(r *http.Request, body []byte) ([]byte, error) {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType != "application/x-www-form-urlencoded" {
		return body, nil
	}

	values, err := url.ParseQuery(string(body))
	if err != nil {
		return nil, fmt.Errorf("parse form body: %w", err)
	}
	fields := make(map[string]string, len(values))
	for k := range values {
		fields[k] = values.Get(k)
	}
	return json.Marshal(fields)
}
