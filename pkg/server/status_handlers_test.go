package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/certen/exec-orchestrator/pkg/status"
)

type fakeRegistrar struct {
	registered   map[string]bool
	registerOK   bool
	unregisterOK bool
	snapshot     map[string]status.TaskStatus
}

func newFakeRegistrar() *fakeRegistrar {
	return &fakeRegistrar{registered: map[string]bool{}, registerOK: true, unregisterOK: true}
}

func (f *fakeRegistrar) RegisterContract(address string, info map[string]interface{}) bool {
	if !f.registerOK {
		return false
	}
	f.registered[address] = true
	return true
}

func (f *fakeRegistrar) UnregisterContract(address string) bool {
	if !f.unregisterOK {
		return false
	}
	delete(f.registered, address)
	return true
}

func (f *fakeRegistrar) GetAllTaskStatus() map[string]status.TaskStatus {
	return f.snapshot
}

func TestHandleRegisterContractAccepted(t *testing.T) {
	reg := newFakeRegistrar()
	h := NewStatusHandlers(reg)

	body := bytes.NewBufferString(`{"address":"0xabc","use_existing_data":true}`)
	req := httptest.NewRequest(http.MethodPost, "/contracts", body)
	rec := httptest.NewRecorder()

	h.HandleRegisterContract(rec, req)

	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", rec.Code, rec.Body.String())
	}
	if !reg.registered["0xabc"] {
		t.Errorf("expected 0xabc to be registered")
	}
}

func TestHandleRegisterContractConflict(t *testing.T) {
	reg := newFakeRegistrar()
	reg.registerOK = false
	h := NewStatusHandlers(reg)

	body := bytes.NewBufferString(`{"address":"0xabc"}`)
	req := httptest.NewRequest(http.MethodPost, "/contracts", body)
	rec := httptest.NewRecorder()

	h.HandleRegisterContract(rec, req)

	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rec.Code)
	}
}

func TestHandleRegisterContractRejectsMissingAddress(t *testing.T) {
	reg := newFakeRegistrar()
	h := NewStatusHandlers(reg)

	req := httptest.NewRequest(http.MethodPost, "/contracts", bytes.NewBufferString(`{}`))
	rec := httptest.NewRecorder()

	h.HandleRegisterContract(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestHandleUnregisterContract(t *testing.T) {
	reg := newFakeRegistrar()
	reg.registered["0xabc"] = true
	h := NewStatusHandlers(reg)

	req := httptest.NewRequest(http.MethodDelete, "/contracts/0xabc", nil)
	rec := httptest.NewRecorder()

	h.HandleUnregisterContract(rec, req)

	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", rec.Code)
	}
	if reg.registered["0xabc"] {
		t.Errorf("expected 0xabc to be removed from the registration table")
	}
}

func TestHandleUnregisterContractNotFound(t *testing.T) {
	reg := newFakeRegistrar()
	reg.unregisterOK = false
	h := NewStatusHandlers(reg)

	req := httptest.NewRequest(http.MethodDelete, "/contracts/0xabc", nil)
	rec := httptest.NewRecorder()

	h.HandleUnregisterContract(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestHandleStatusReturnsSnapshot(t *testing.T) {
	reg := newFakeRegistrar()
	reg.snapshot = map[string]status.TaskStatus{
		"0xabc": status.NewRegistering("0xabc").WithListening(),
	}
	h := NewStatusHandlers(reg)

	req := httptest.NewRequest(http.MethodGet, "/status", nil)
	rec := httptest.NewRecorder()

	h.HandleStatus(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var got map[string]status.TaskStatus
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if got["0xabc"].Status != status.Listening {
		t.Errorf("expected 0xabc to be LISTENING, got %+v", got["0xabc"])
	}
}
