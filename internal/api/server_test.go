package api_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"tpv-fleet/internal/api"
	"tpv-fleet/internal/di"
	"tpv-fleet/internal/models"

	rediskeys "tpv-fleet/internal/common/redis"
)

type apiEnv struct {
	server    *api.Server
	container *di.Container
	cache     *di.MockCacheService
	db        *di.MockDatabaseService
}

func newAPIEnv(t *testing.T) *apiEnv {
	t.Helper()
	c := di.NewMockContainer()
	server := api.NewServer(c.Dispatcher, c.ToggleManager, c.WizardManager, c.Database, c.Logger)
	return &apiEnv{
		server:    server,
		container: c,
		cache:     c.Cache.(*di.MockCacheService),
		db:        c.Database.(*di.MockDatabaseService),
	}
}

func (e *apiEnv) do(t *testing.T, method, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	e.server.Echo().ServeHTTP(rec, req)
	return rec
}

func (e *apiEnv) markOnline(t *testing.T, terminalID string) {
	t.Helper()
	if err := e.cache.Set(context.Background(), rediskeys.TerminalPresence(terminalID), "1", time.Minute); err != nil {
		t.Fatalf("failed to seed presence: %v", err)
	}
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("invalid JSON body %q: %v", rec.Body.String(), err)
	}
	return out
}

func TestGetCommandCatalog(t *testing.T) {
	env := newAPIEnv(t)

	rec := env.do(t, http.MethodGet, "/api/v1/commands/catalog", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	body := decodeBody(t, rec)
	data := body["data"].(map[string]interface{})
	if data["count"].(float64) != 10 {
		t.Errorf("expected 10 catalog entries, got %v", data["count"])
	}
}

func TestDispatchCommandEndpoint(t *testing.T) {
	env := newAPIEnv(t)

	t.Run("offline terminal answers 409", func(t *testing.T) {
		rec := env.do(t, http.MethodPost, "/api/v1/terminals/term-1/commands",
			`{"venue_id":"venue-1","command_type":"SYNC_DATA"}`, nil)
		if rec.Code != http.StatusConflict {
			t.Fatalf("expected 409, got %d: %s", rec.Code, rec.Body.String())
		}
	})

	t.Run("unknown command answers 400", func(t *testing.T) {
		rec := env.do(t, http.MethodPost, "/api/v1/terminals/term-1/commands",
			`{"venue_id":"venue-1","command_type":"SELF_DESTRUCT"}`, nil)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("expected 400, got %d", rec.Code)
		}
	})

	t.Run("plain command answers 202", func(t *testing.T) {
		env.markOnline(t, "term-1")
		rec := env.do(t, http.MethodPost, "/api/v1/terminals/term-1/commands",
			`{"venue_id":"venue-1","command_type":"SYNC_DATA"}`, nil)
		if rec.Code != http.StatusAccepted {
			t.Fatalf("expected 202, got %d: %s", rec.Code, rec.Body.String())
		}
		body := decodeBody(t, rec)
		data := body["data"].(map[string]interface{})
		if data["invocation_id"] == "" {
			t.Error("expected an invocation ID in the ack")
		}
	})

	t.Run("duplicate answers 409", func(t *testing.T) {
		env.markOnline(t, "term-2")
		first := env.do(t, http.MethodPost, "/api/v1/terminals/term-2/commands",
			`{"venue_id":"venue-1","command_type":"UNLOCK"}`, nil)
		if first.Code != http.StatusAccepted {
			t.Fatalf("expected 202, got %d", first.Code)
		}
		second := env.do(t, http.MethodPost, "/api/v1/terminals/term-2/commands",
			`{"venue_id":"venue-1","command_type":"UNLOCK"}`, nil)
		if second.Code != http.StatusConflict {
			t.Fatalf("expected 409, got %d", second.Code)
		}
	})
}

func TestConfirmationEndpoints(t *testing.T) {
	env := newAPIEnv(t)
	env.markOnline(t, "term-1")

	rec := env.do(t, http.MethodPost, "/api/v1/terminals/term-1/commands",
		`{"venue_id":"venue-1","command_type":"RESTART"}`, nil)
	if rec.Code != http.StatusPreconditionRequired {
		t.Fatalf("expected 428, got %d: %s", rec.Code, rec.Body.String())
	}

	t.Run("confirm resubmits with confirm flag", func(t *testing.T) {
		rec := env.do(t, http.MethodPost, "/api/v1/terminals/term-1/commands",
			`{"venue_id":"venue-1","command_type":"RESTART","confirm":true}`, nil)
		if rec.Code != http.StatusAccepted {
			t.Fatalf("expected 202, got %d: %s", rec.Code, rec.Body.String())
		}
	})

	t.Run("cancel discards the staged dispatch", func(t *testing.T) {
		stage := env.do(t, http.MethodPost, "/api/v1/terminals/term-1/commands",
			`{"venue_id":"venue-1","command_type":"CLEAR_CACHE"}`, nil)
		if stage.Code != http.StatusPreconditionRequired {
			t.Fatalf("expected 428, got %d", stage.Code)
		}
		cancel := env.do(t, http.MethodDelete, "/api/v1/terminals/term-1/commands/CLEAR_CACHE/confirmation", "", nil)
		if cancel.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", cancel.Code)
		}
		confirm := env.do(t, http.MethodPost, "/api/v1/terminals/term-1/commands",
			`{"venue_id":"venue-1","command_type":"CLEAR_CACHE","confirm":true}`, nil)
		if confirm.Code != http.StatusConflict {
			t.Fatalf("confirm after cancel must answer 409, got %d", confirm.Code)
		}
	})
}

func TestRemoteActivateEndpoint(t *testing.T) {
	env := newAPIEnv(t)
	env.markOnline(t, "term-1")

	t.Run("missing operator role answers 403", func(t *testing.T) {
		rec := env.do(t, http.MethodPost, "/api/v1/terminals/term-1/activate", "", nil)
		if rec.Code != http.StatusForbidden {
			t.Fatalf("expected 403, got %d", rec.Code)
		}
	})

	t.Run("admin role activates", func(t *testing.T) {
		env.db.Terminals["term-1"] = &models.Terminal{ID: "term-1", VenueID: "venue-1"}
		rec := env.do(t, http.MethodPost, "/api/v1/terminals/term-1/activate", "",
			map[string]string{"X-Operator-Role": "admin"})
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
		}
	})
}

func TestToggleEndpoints(t *testing.T) {
	env := newAPIEnv(t)
	env.markOnline(t, "term-1")

	t.Run("unknown kind answers 400", func(t *testing.T) {
		rec := env.do(t, http.MethodPost, "/api/v1/terminals/term-1/toggles/volume",
			`{"venue_id":"venue-1","desired":true}`, nil)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("expected 400, got %d", rec.Code)
		}
	})

	t.Run("request marks the toggle busy", func(t *testing.T) {
		rec := env.do(t, http.MethodPost, "/api/v1/terminals/term-1/toggles/lock",
			`{"venue_id":"venue-1","desired":true}`, nil)
		if rec.Code != http.StatusAccepted {
			t.Fatalf("expected 202, got %d", rec.Code)
		}

		state := env.do(t, http.MethodGet, "/api/v1/terminals/term-1/toggles/lock", "", nil)
		if state.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", state.Code)
		}
		data := decodeBody(t, state)["data"].(map[string]interface{})
		if data["busy"] != true {
			t.Errorf("expected busy toggle, got %v", data)
		}
	})

	t.Run("payload submit without a pending dialog answers 409", func(t *testing.T) {
		rec := env.do(t, http.MethodPost, "/api/v1/terminals/term-1/toggles/maintenance/payload",
			`{"message":"closing early"}`, nil)
		if rec.Code != http.StatusConflict {
			t.Fatalf("expected 409, got %d", rec.Code)
		}
	})
}

func TestPurchaseEndpoints(t *testing.T) {
	env := newAPIEnv(t)

	start := env.do(t, http.MethodPost, "/api/v1/venues/venue-1/purchase", `{}`, nil)
	if start.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", start.Code, start.Body.String())
	}
	sessionID := decodeBody(t, start)["data"].(map[string]interface{})["session_id"].(string)

	t.Run("invalid step data answers 422", func(t *testing.T) {
		rec := env.do(t, http.MethodPut, "/api/v1/purchase/"+sessionID+"/step/1",
			`{"quantity":0,"name_prefix":"ab"}`, nil)
		if rec.Code != http.StatusUnprocessableEntity {
			t.Fatalf("expected 422, got %d: %s", rec.Code, rec.Body.String())
		}
		body := decodeBody(t, rec)
		if body["errors"] == nil {
			t.Error("expected field errors in the body")
		}
	})

	t.Run("wrong step answers 409", func(t *testing.T) {
		rec := env.do(t, http.MethodPut, "/api/v1/purchase/"+sessionID+"/step/2",
			`{"contact_name":"Ana"}`, nil)
		if rec.Code != http.StatusConflict {
			t.Fatalf("expected 409, got %d", rec.Code)
		}
	})

	t.Run("full walk to completion", func(t *testing.T) {
		steps := []struct {
			path string
			body string
		}{
			{"/step/1", `{"quantity":2,"name_prefix":"Bar Terminal"}`},
			{"/step/2", `{"contact_name":"Ana Ruiz","contact_email":"ana@example.com","address_line":"Calle Mayor 1","city":"Madrid","postal_code":"28001","country":"ES","speed":"express"}`},
			{"/step/3", `{"method":"balance"}`},
		}
		for _, step := range steps {
			rec := env.do(t, http.MethodPut, "/api/v1/purchase/"+sessionID+step.path, step.body, nil)
			if rec.Code != http.StatusOK {
				t.Fatalf("step %s: expected 200, got %d: %s", step.path, rec.Code, rec.Body.String())
			}
		}

		review := env.do(t, http.MethodGet, "/api/v1/purchase/"+sessionID+"/review", "", nil)
		if review.Code != http.StatusOK {
			t.Fatalf("review: expected 200, got %d", review.Code)
		}

		// Completing without terms answers 412.
		blocked := env.do(t, http.MethodPost, "/api/v1/purchase/"+sessionID+"/complete", "", nil)
		if blocked.Code != http.StatusPreconditionFailed {
			t.Fatalf("expected 412, got %d", blocked.Code)
		}

		terms := env.do(t, http.MethodPut, "/api/v1/purchase/"+sessionID+"/terms", `{"accepted":true}`, nil)
		if terms.Code != http.StatusOK {
			t.Fatalf("terms: expected 200, got %d", terms.Code)
		}

		done := env.do(t, http.MethodPost, "/api/v1/purchase/"+sessionID+"/complete", "", nil)
		if done.Code != http.StatusOK {
			t.Fatalf("complete: expected 200, got %d: %s", done.Code, done.Body.String())
		}
		data := decodeBody(t, done)["data"].(map[string]interface{})
		if data["created"].(float64) != 2 {
			t.Errorf("expected 2 terminals created, got %v", data["created"])
		}

		// The session is discarded after completion.
		gone := env.do(t, http.MethodGet, "/api/v1/purchase/"+sessionID, "", nil)
		if gone.Code != http.StatusNotFound {
			t.Fatalf("expected 404 after completion, got %d", gone.Code)
		}
	})
}

func TestGetTerminalNotFound(t *testing.T) {
	env := newAPIEnv(t)

	rec := env.do(t, http.MethodGet, "/api/v1/terminals/nope", "", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}
