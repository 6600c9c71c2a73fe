package secrets

import (
	"encoding/json"
	"net/http"
	"strings"
)

// HandleResultFunc receives the outcome of a login or registration
type HandleResultFunc func(strategy Provider, result AuthResult, w http.ResponseWriter, r *http.Request)

// Allows local username/password based authentication
type LocalAuth struct {
	// Validates credentials during login
	VerifyCredentials VerifyCredentialsFunc

	// Creates a new identity (for registration)
	Register RegisterFunc

	// Form field names
	UsernameField string
	PasswordField string

	// Called with the result of every login and registration
	HandleResult HandleResultFunc
}

// HandleLogin handles POST /login
func (a *LocalAuth) HandleLogin(w http.ResponseWriter, r *http.Request) {
	if a.VerifyCredentials == nil {
		http.Error(w, "Login not configured", http.StatusInternalServerError)
		return
	}
	creds, authErr := a.parseForm(r)
	if authErr != nil {
		// a malformed login reads exactly like a wrong password
		a.HandleResult(ProviderLocal, Failure(ReasonInvalidInput, invalidCredentials(authErr)), w, r)
		return
	}
	a.HandleResult(ProviderLocal, a.VerifyCredentials(r.Context(), creds.Username, creds.Password), w, r)
}

// HandleRegister handles POST /register
func (a *LocalAuth) HandleRegister(w http.ResponseWriter, r *http.Request) {
	if a.Register == nil {
		http.Error(w, "Registration not configured", http.StatusInternalServerError)
		return
	}
	creds, authErr := a.parseForm(r)
	if authErr != nil {
		a.HandleResult(ProviderLocal, Failure(ReasonInvalidInput, authErr), w, r)
		return
	}
	a.HandleResult(ProviderLocal, a.Register(r.Context(), creds), w, r)
}

// parseForm reads the username and password from a form or JSON body
func (a *LocalAuth) parseForm(r *http.Request) (Credentials, *AuthError) {
	usernameField := a.getUsernameField()
	passwordField := a.getPasswordField()

	var creds Credentials
	if strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") {
		var data map[string]any
		if err := json.NewDecoder(r.Body).Decode(&data); err != nil || data == nil {
			return creds, &AuthError{Kind: KindValidation, Code: "parse_error", Message: "Invalid request body", Err: err}
		}
		creds.Username, _ = data[usernameField].(string)
		creds.Password, _ = data[passwordField].(string)
	} else {
		if err := r.ParseForm(); err != nil {
			return creds, &AuthError{Kind: KindValidation, Code: "parse_error", Message: "Invalid form data", Err: err}
		}
		creds.Username = r.PostFormValue(usernameField)
		creds.Password = r.PostFormValue(passwordField)
	}
	creds.Username = strings.TrimSpace(creds.Username)

	if creds.Username == "" {
		return creds, NewAuthError(KindValidation, ErrCodeMissingField, "Username is required", "username")
	}
	if creds.Password == "" {
		return creds, NewAuthError(KindValidation, ErrCodeMissingField, "Password is required", "password")
	}
	return creds, nil
}

func (a *LocalAuth) getUsernameField() string {
	if a.UsernameField != "" {
		return a.UsernameField
	}
	return "username"
}

func (a *LocalAuth) getPasswordField() string {
	if a.PasswordField != "" {
		return a.PasswordField
	}
	return "password"
}
