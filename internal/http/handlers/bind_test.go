package handlers_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/geocoder89/kidshub/internal/http/handlers"
	"github.com/gin-gonic/gin"
)

type contactRequest struct {
	Email   string `json:"email" validate:"required,email"`
	Phone   string `json:"phone_number" validate:"omitempty,max=16"`
	Seats   int    `json:"seats" validate:"min=1,max=10"`
	Contact struct {
		Name string `json:"contact_name" validate:"required"`
	} `json:"contact"`
}

type bindErrorResponse struct {
	Error struct {
		Code    string `json:"code"`
		Details struct {
			JSON   string                `json:"json"`
			Field  string                `json:"field"`
			Fields []handlers.FieldError `json:"fields"`
		} `json:"details"`
	} `json:"error"`
}

func bindRouter() *gin.Engine {
	r := gin.New()
	r.POST("/contact", func(ctx *gin.Context) {
		var req contactRequest
		if !handlers.BindJSON(ctx, &req) {
			return
		}
		ctx.Status(http.StatusCreated)
	})
	return r
}

func postBind(t *testing.T, r http.Handler, body string) (*httptest.ResponseRecorder, bindErrorResponse) {
	t.Helper()

	req := httptest.NewRequest(http.MethodPost, "/contact", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	var resp bindErrorResponse
	if w.Code != http.StatusCreated {
		if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
			t.Fatalf("failed to unmarshal error response: %v body=%s", err, w.Body.String())
		}
	}
	return w, resp
}

func TestBindJSON_Valid(t *testing.T) {
	w, _ := postBind(t, bindRouter(), `{"email":"a@b.bg","seats":2,"contact":{"contact_name":"Ana"}}`)
	if w.Code != http.StatusCreated {
		t.Fatalf("got status %d, body=%s", w.Code, w.Body.String())
	}
}

func TestBindJSON_ValidationErrorsUseJSONFieldNames(t *testing.T) {
	w, resp := postBind(t, bindRouter(), `{"email":"nope","phone_number":"0888123456789012345","seats":0}`)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("got status %d, want %d, body=%s", w.Code, http.StatusBadRequest, w.Body.String())
	}
	if resp.Error.Code != "invalid_request" {
		t.Fatalf("unexpected code: %s", resp.Error.Code)
	}

	wantRules := map[string]string{
		"email":                "email",
		"phone_number":         "max",
		"seats":                "min",
		"contact.contact_name": "required",
	}

	found := map[string]handlers.FieldError{}
	for _, fe := range resp.Error.Details.Fields {
		found[fe.Field] = fe
	}

	for field, rule := range wantRules {
		fe, ok := found[field]
		if !ok {
			t.Fatalf("missing field error for %q: %+v", field, resp.Error.Details.Fields)
		}
		if fe.Rule != rule {
			t.Fatalf("field %q rule mismatch: got %q want %q", field, fe.Rule, rule)
		}
		if fe.Message == "" {
			t.Fatalf("field %q should include a non-empty message", field)
		}
	}
}

func TestBindJSON_TypeMismatch(t *testing.T) {
	w, resp := postBind(t, bindRouter(), `{"email":"a@b.bg","seats":"two"}`)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("got status %d, want %d", w.Code, http.StatusBadRequest)
	}
	if resp.Error.Details.JSON != "invalid_json_type" {
		t.Fatalf("expected invalid_json_type, got %q", resp.Error.Details.JSON)
	}
	if resp.Error.Details.Field != "seats" {
		t.Fatalf("expected field seats, got %q", resp.Error.Details.Field)
	}
}

func TestBindJSON_BadSyntaxAndEmptyBody(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"syntax", `{"email" "a"}`, "invalid_json_syntax"},
		{"truncated", `{"email":`, "invalid_json_syntax"},
		{"empty", ``, "empty_body"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			w, resp := postBind(t, bindRouter(), tc.body)
			if w.Code != http.StatusBadRequest {
				t.Fatalf("got status %d, want 400", w.Code)
			}
			if resp.Error.Details.JSON != tc.want {
				t.Fatalf("details.json = %q, want %q", resp.Error.Details.JSON, tc.want)
			}
		})
	}
}

func TestBindJSON_TooLarge(t *testing.T) {
	r := gin.New()
	r.Use(func(ctx *gin.Context) {
		ctx.Request.Body = http.MaxBytesReader(ctx.Writer, ctx.Request.Body, 16)
	})
	r.POST("/contact", func(ctx *gin.Context) {
		var req contactRequest
		if handlers.BindJSON(ctx, &req) {
			ctx.Status(http.StatusCreated)
		}
	})

	w, _ := postBind(t, r, `{"email":"`+strings.Repeat("a", 64)+`@b.bg"}`)
	if w.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("got status %d, want 413", w.Code)
	}
}
