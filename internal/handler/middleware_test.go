package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"swiftpay/internal/model"
	"swiftpay/internal/service"
	"swiftpay/internal/session"
	"swiftpay/pkg/response"

	"github.com/gin-gonic/gin"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// 内存版 session.Store，仅供本包测试使用
type stubSessionStore struct {
	mu   sync.Mutex
	csrf map[string]string
}

func newStubSessionStore() *stubSessionStore {
	return &stubSessionStore{csrf: map[string]string{}}
}

func (s *stubSessionStore) Save(ctx context.Context, token string, sess *session.Session) error {
	return nil
}

func (s *stubSessionStore) Get(ctx context.Context, token string) (*session.Session, error) {
	return nil, nil
}

func (s *stubSessionStore) Delete(ctx context.Context, token string) error {
	return nil
}

func (s *stubSessionStore) SaveCSRF(ctx context.Context, bindingID, secret string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.csrf[bindingID] = secret
	return nil
}

func (s *stubSessionStore) GetCSRF(ctx context.Context, bindingID string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.csrf[bindingID], nil
}

func (s *stubSessionStore) DeleteCSRF(ctx context.Context, bindingID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.csrf, bindingID)
	return nil
}

func okHandler(c *gin.Context) {
	response.Success(c, gin.H{"reached": true})
}

func decodeResponse(t *testing.T, w *httptest.ResponseRecorder) response.Response {
	t.Helper()
	var resp response.Response
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("invalid response body %q: %v", w.Body.String(), err)
	}
	return resp
}

func TestCSRFMiddleware(t *testing.T) {
	store := newStubSessionStore()
	guard := session.NewCsrfGuard(store)

	bindingID, token, err := guard.Issue(context.Background())
	if err != nil {
		t.Fatalf("issue failed: %v", err)
	}

	r := gin.New()
	r.POST("/guarded", CSRFMiddleware(guard), okHandler)

	cases := []struct {
		name       string
		bindingID  string
		header     string
		wantStatus int
	}{
		{"matching pair", bindingID, token, http.StatusOK},
		{"missing header", bindingID, "", http.StatusForbidden},
		{"missing cookie", "", token, http.StatusForbidden},
		{"wrong token", bindingID, "deadbeef", http.StatusForbidden},
		{"swapped values", token, bindingID, http.StatusForbidden},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/guarded", nil)
			if tc.bindingID != "" {
				req.AddCookie(&http.Cookie{Name: cookieCsrfID, Value: tc.bindingID})
			}
			if tc.header != "" {
				req.Header.Set(headerCsrfToken, tc.header)
			}

			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)

			if w.Code != tc.wantStatus {
				t.Fatalf("status = %d, want %d", w.Code, tc.wantStatus)
			}
			if tc.wantStatus == http.StatusForbidden {
				if resp := decodeResponse(t, w); resp.Code != response.CodeCsrfRejected {
					t.Fatalf("business code = %d, want %d", resp.Code, response.CodeCsrfRejected)
				}
			}
		})
	}
}

// 把账户直接挂进上下文，绕过会话解析，单测授权网关本身
func withAccount(account *model.Account) gin.HandlerFunc {
	return func(c *gin.Context) {
		if account != nil {
			c.Set(ctxAccountKey, account)
		}
		c.Next()
	}
}

func TestRequireAuth(t *testing.T) {
	r := gin.New()
	r.GET("/anon", withAccount(nil), RequireAuth(), okHandler)
	r.GET("/authed", withAccount(&model.Account{ID: 1}), RequireAuth(), okHandler)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/anon", nil))
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("anonymous status = %d, want 401", w.Code)
	}

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/authed", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("authenticated status = %d, want 200", w.Code)
	}
}

func TestRequireOperation(t *testing.T) {
	customer := &model.Account{ID: 1}
	staff := &model.Account{ID: 2, IsStaff: true}

	cases := []struct {
		name       string
		account    *model.Account
		op         service.Operation
		wantStatus int
	}{
		{"anonymous on staff op", nil, service.OpVerifyPayment, http.StatusUnauthorized},
		{"customer on staff op", customer, service.OpVerifyPayment, http.StatusForbidden},
		{"staff on staff op", staff, service.OpVerifyPayment, http.StatusOK},
		{"customer on own op", customer, service.OpCreatePayment, http.StatusOK},
		{"customer on review list", customer, service.OpListForReview, http.StatusForbidden},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := gin.New()
			r.POST("/op", withAccount(tc.account), RequireOperation(tc.op), okHandler)

			w := httptest.NewRecorder()
			r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/op", nil))
			if w.Code != tc.wantStatus {
				t.Fatalf("status = %d, want %d", w.Code, tc.wantStatus)
			}
		})
	}
}
