package httpx

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"strconv"

	"github.com/splax/userdesk/internal/domain"
	"github.com/splax/userdesk/internal/service/user"
	"github.com/splax/userdesk/internal/validate"
)

const (
	msgValidationFailed = "Validation failed"
	msgUserNotFound     = "User not found"
	msgInvalidEmail     = "Invalid email format"
	msgEmailExists      = "Email already exists"
	msgUserIDRequired   = "User ID is required"
	msgServerError      = "Server error"
	msgRateLimited      = "Rate limit exceeded"
	msgInvalidJSON      = "Invalid JSON body"

	maxBodyBytes = 1 << 20
)

func (r *Router) handleListUsers(w http.ResponseWriter, req *http.Request) {
	users, err := r.users.List(req.Context())
	if err != nil {
		r.writeUserError(w, req, err)
		return
	}
	if users == nil {
		users = []domain.User{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"count":   len(users),
		"data":    users,
	})
}

func (r *Router) handleGetUser(w http.ResponseWriter, req *http.Request) {
	u, err := r.users.Get(req.Context(), userIDParam(req))
	if err != nil {
		r.writeUserError(w, req, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "data": u})
}

func (r *Router) handleCreateUser(w http.ResponseWriter, req *http.Request) {
	body, err := decodeBody(req)
	if err != nil {
		writeError(w, http.StatusBadRequest, msgInvalidJSON)
		return
	}
	u, err := r.users.Create(req.Context(), createInputFromBody(body))
	if err != nil {
		r.writeUserError(w, req, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"success": true,
		"message": "User created successfully",
		"data":    u,
	})
}

func (r *Router) handleUpdateUser(w http.ResponseWriter, req *http.Request) {
	body, err := decodeBody(req)
	if err != nil {
		writeError(w, http.StatusBadRequest, msgInvalidJSON)
		return
	}
	u, err := r.users.Update(req.Context(), userIDParam(req), updateInputFromBody(body))
	if err != nil {
		r.writeUserError(w, req, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "User updated successfully",
		"data":    u,
	})
}

func (r *Router) handleDeleteUser(w http.ResponseWriter, req *http.Request) {
	u, err := r.users.Delete(req.Context(), userIDParam(req))
	if err != nil {
		r.writeUserError(w, req, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "User deleted successfully",
		"data":    u,
	})
}

// writeUserError maps a service outcome onto the JSON failure shapes.
func (r *Router) writeUserError(w http.ResponseWriter, req *http.Request, err error) {
	switch user.Classify(err) {
	case user.OutcomeNotFound:
		writeError(w, http.StatusNotFound, msgUserNotFound)
	case user.OutcomeValidation:
		if errors.Is(err, user.ErrInvalidEmail) {
			writeError(w, http.StatusBadRequest, msgInvalidEmail)
			return
		}
		writeValidationErrors(w, user.Messages(err))
	case user.OutcomeConflict:
		writeError(w, http.StatusBadRequest, msgEmailExists)
	default:
		r.logger.Error("user request failed", "method", req.Method, "path", req.URL.Path, "error", err)
		r.writeFault(w, err)
	}
}

// decodeBody reads a JSON object. An empty body decodes as an empty object.
func decodeBody(req *http.Request) (map[string]any, error) {
	dec := json.NewDecoder(io.LimitReader(req.Body, maxBodyBytes))
	dec.UseNumber()
	var body map[string]any
	if err := dec.Decode(&body); err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}
	if body == nil {
		body = map[string]any{}
	}
	return body, nil
}

func createInputFromBody(body map[string]any) user.CreateInput {
	age, err := parseAge(body["age"])
	return user.CreateInput{
		Name:       stringField(body["name"]),
		Email:      stringField(body["email"]),
		Age:        age,
		InvalidAge: err != nil,
	}
}

func updateInputFromBody(body map[string]any) user.UpdateInput {
	age, err := parseAge(body["age"])
	in := user.UpdateInput{Age: age, InvalidAge: err != nil}
	if v, ok := body["name"]; ok && v != nil {
		name := stringField(v)
		in.Name = &name
	}
	if v, ok := body["email"]; ok && v != nil {
		email := stringField(v)
		in.Email = &email
	}
	return in
}

// stringField renders scalar JSON values as text; nil becomes "".
func stringField(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	default:
		return fmt.Sprint(t)
	}
}

var errAgeNotNumber = errors.New(user.AgeNotNumber)

// parseAge accepts a JSON number or a numeric string. Blank and null mean "not supplied".
func parseAge(v any) (*int, error) {
	switch t := v.(type) {
	case nil:
		return nil, nil
	case json.Number:
		if n, err := t.Int64(); err == nil {
			return intFrom(n)
		}
		f, err := t.Float64()
		if err != nil {
			return nil, errAgeNotNumber
		}
		return intFromFloat(f)
	case string:
		s := validate.Sanitize(t)
		if s == "" {
			return nil, nil
		}
		n, err := strconv.Atoi(s)
		if err != nil {
			return nil, errAgeNotNumber
		}
		return &n, nil
	default:
		return nil, errAgeNotNumber
	}
}

func intFrom(n int64) (*int, error) {
	if n > math.MaxInt32 || n < math.MinInt32 {
		return nil, errAgeNotNumber
	}
	v := int(n)
	return &v, nil
}

func intFromFloat(f float64) (*int, error) {
	if math.IsNaN(f) || f > math.MaxInt32 || f < math.MinInt32 {
		return nil, errAgeNotNumber
	}
	return intFrom(int64(math.Trunc(f)))
}
