package httpx

import (
	"errors"
	"net/http"
	"slices"

	"github.com/splax/userdesk/internal/domain"
	"github.com/splax/userdesk/internal/service/user"
)

const (
	pageCreateTitle = "Create New User"
	pageEditTitle   = "Edit User"
	msgInvalidForm  = "The submitted form could not be read."
)

func (r *Router) handleHome(w http.ResponseWriter, req *http.Request) {
	r.render(w, req, http.StatusOK, "index", map[string]any{
		"Title": "User Management",
	})
}

func (r *Router) renderUsersPage(w http.ResponseWriter, req *http.Request) {
	users, err := r.users.List(req.Context())
	if err != nil {
		r.logger.Error("list users for page failed", "error", err)
		r.renderError(w, req, http.StatusInternalServerError, "Error", "Failed to load users")
		return
	}
	r.render(w, req, http.StatusOK, "users", map[string]any{
		"Title":     "Users List",
		"Users":     users,
		"UserCount": len(users),
		"Flash":     flashFromRequest(req),
	})
}

func (r *Router) renderCreatePage(w http.ResponseWriter, req *http.Request) {
	r.render(w, req, http.StatusOK, "create", map[string]any{
		"Title":    pageCreateTitle,
		"FormData": map[string]string{},
	})
}

func (r *Router) renderUserDetailPage(w http.ResponseWriter, req *http.Request) {
	u, err := r.users.Get(req.Context(), userIDParam(req))
	if err != nil {
		r.renderLookupError(w, req, err, "Failed to load user details")
		return
	}
	r.render(w, req, http.StatusOK, "detail", map[string]any{
		"Title": "User Details",
		"User":  u,
		"Flash": flashFromRequest(req),
	})
}

func (r *Router) renderEditPage(w http.ResponseWriter, req *http.Request) {
	u, err := r.users.Get(req.Context(), userIDParam(req))
	if err != nil {
		r.renderLookupError(w, req, err, "Failed to load user")
		return
	}
	r.render(w, req, http.StatusOK, "edit", map[string]any{
		"Title": pageEditTitle,
		"User":  u,
	})
}

func (r *Router) handleCreateForm(w http.ResponseWriter, req *http.Request) {
	form := map[string]string{}
	if err := req.ParseForm(); err != nil {
		r.renderError(w, req, http.StatusBadRequest, "Bad Request", msgInvalidForm)
		return
	}
	for _, key := range []string{"name", "email", "age"} {
		form[key] = req.PostForm.Get(key)
	}
	age, ageErr := parseAge(form["age"])
	_, err := r.users.Create(req.Context(), user.CreateInput{
		Name:       form["name"],
		Email:      form["email"],
		Age:        age,
		InvalidAge: ageErr != nil,
	})
	if err != nil {
		r.renderCreateFailure(w, req, form, err)
		return
	}
	redirectWithFlash(w, req, "/users", "User created successfully")
}

func (r *Router) renderCreateFailure(w http.ResponseWriter, req *http.Request, form map[string]string, err error) {
	status := http.StatusOK
	if user.Classify(err) == user.OutcomeFault {
		r.logger.Error("create user from form failed", "error", err)
		status = http.StatusInternalServerError
	}
	r.render(w, req, status, "create", map[string]any{
		"Title":    pageCreateTitle,
		"Error":    viewFailureMessage(err, "Failed to create user"),
		"FormData": form,
	})
}

func (r *Router) handleUpdateForm(w http.ResponseWriter, req *http.Request) {
	existing, err := r.users.Get(req.Context(), userIDParam(req))
	if err != nil {
		r.renderLookupError(w, req, err, "Failed to load user")
		return
	}
	if err := req.ParseForm(); err != nil {
		r.renderError(w, req, http.StatusBadRequest, "Bad Request", msgInvalidForm)
		return
	}
	name := req.PostForm.Get("name")
	email := req.PostForm.Get("email")
	age, ageErr := parseAge(req.PostForm.Get("age"))
	_, err = r.users.Update(req.Context(), existing.ID, user.UpdateInput{
		Name:       &name,
		Email:      &email,
		Age:        age,
		InvalidAge: ageErr != nil,
	})
	if err != nil {
		if user.Classify(err) == user.OutcomeNotFound {
			r.renderError(w, req, http.StatusNotFound, "Not Found", msgUserNotFound)
			return
		}
		r.renderEditFailure(w, req, existing, err)
		return
	}
	redirectWithFlash(w, req, "/users", "User updated successfully")
}

func (r *Router) renderEditFailure(w http.ResponseWriter, req *http.Request, existing *domain.User, err error) {
	status := http.StatusOK
	if user.Classify(err) == user.OutcomeFault {
		r.logger.Error("update user from form failed", "error", err)
		status = http.StatusInternalServerError
	}
	r.render(w, req, status, "edit", map[string]any{
		"Title": pageEditTitle,
		"User":  existing,
		"Error": viewFailureMessage(err, "Failed to update user"),
	})
}

func (r *Router) handleDeleteForm(w http.ResponseWriter, req *http.Request) {
	_, err := r.users.Delete(req.Context(), userIDParam(req))
	switch user.Classify(err) {
	case user.OutcomeOK:
		redirectWithFlash(w, req, "/users", "User deleted successfully")
	case user.OutcomeNotFound:
		r.renderError(w, req, http.StatusNotFound, "Not Found", msgUserNotFound)
	default:
		r.logger.Error("delete user from form failed", "error", err)
		redirectWithFlash(w, req, "/users", "Failed to delete user")
	}
}

func (r *Router) renderLookupError(w http.ResponseWriter, req *http.Request, err error, faultMessage string) {
	if user.Classify(err) == user.OutcomeNotFound {
		r.renderError(w, req, http.StatusNotFound, "Not Found", msgUserNotFound)
		return
	}
	r.logger.Error("load user for page failed", "error", err)
	r.renderError(w, req, http.StatusInternalServerError, "Error", faultMessage)
}

// viewFailureMessage picks the single line shown above a re-rendered form.
func viewFailureMessage(err error, faultMessage string) string {
	switch user.Classify(err) {
	case user.OutcomeConflict:
		return "Email already exists"
	case user.OutcomeValidation:
		if errors.Is(err, user.ErrInvalidEmail) {
			return "Invalid email format"
		}
		if slices.Contains(user.Messages(err), user.AgeNotNumber) {
			return "Age must be a number"
		}
		return "Name and email are required"
	default:
		return faultMessage
	}
}
