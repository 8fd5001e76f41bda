package oauthutil

import (
	"context"
	"io/ioutil"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/safearchive/safearchive/fs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

const clientSecrets = `{
  "installed": {
    "client_id": "id.apps.googleusercontent.com",
    "client_secret": "secret",
    "auth_uri": "https://accounts.google.com/o/oauth2/auth",
    "token_uri": "https://oauth2.googleapis.com/token",
    "redirect_uris": ["urn:ietf:wg:oauth:2.0:oob", "http://localhost"]
  }
}`

func TestLoadConfig(t *testing.T) {
	dir := t.TempDir()

	_, err := LoadConfig(filepath.Join(dir, "missing.json"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, fs.ErrorMissingCredentialsConfig))

	bad := filepath.Join(dir, "bad.json")
	require.NoError(t, ioutil.WriteFile(bad, []byte(`{}`), 0600))
	_, err = LoadConfig(bad)
	assert.True(t, errors.Is(err, fs.ErrorMissingCredentialsConfig))

	good := filepath.Join(dir, "client_secrets.json")
	require.NoError(t, ioutil.WriteFile(good, []byte(clientSecrets), 0600))
	config, err := LoadConfig(good, "scope1")
	require.NoError(t, err)
	assert.Equal(t, "id.apps.googleusercontent.com", config.ClientID)
	assert.Equal(t, "secret", config.ClientSecret)
	assert.Equal(t, RedirectURL, config.RedirectURL)
	assert.Equal(t, []string{"scope1"}, config.Scopes)
}

func TestReadWriteToken(t *testing.T) {
	path := filepath.Join(t.TempDir(), "token.json")
	_, err := ReadToken(path)
	assert.Error(t, err)

	token := &oauth2.Token{AccessToken: "access", RefreshToken: "refresh", TokenType: "Bearer"}
	require.NoError(t, WriteToken(path, token))
	got, err := ReadToken(path)
	require.NoError(t, err)
	assert.Equal(t, "access", got.AccessToken)
	assert.Equal(t, "refresh", got.RefreshToken)

	require.NoError(t, ioutil.WriteFile(path, []byte(`{}`), 0600))
	_, err = ReadToken(path)
	assert.Error(t, err)
}

type staticTokenSource struct {
	token *oauth2.Token
	err   error
}

func (s staticTokenSource) Token() (*oauth2.Token, error) {
	return s.token, s.err
}

func TestTokenSourceSavesChanges(t *testing.T) {
	path := filepath.Join(t.TempDir(), "token.json")
	old := &oauth2.Token{AccessToken: "old", RefreshToken: "refresh"}
	fresh := &oauth2.Token{AccessToken: "new", RefreshToken: "refresh", Expiry: time.Now().Add(time.Hour)}
	ts := &TokenSource{path: path, token: old, tokenSource: staticTokenSource{token: fresh}}

	got, err := ts.Token()
	require.NoError(t, err)
	assert.Equal(t, "new", got.AccessToken)
	saved, err := ReadToken(path)
	require.NoError(t, err)
	assert.Equal(t, "new", saved.AccessToken)
}

func TestTokenSourceAuthError(t *testing.T) {
	rErr := &oauth2.RetrieveError{
		Response: &http.Response{StatusCode: http.StatusBadRequest},
		Body:     []byte(`{"error": "invalid_grant"}`),
	}
	ts := &TokenSource{path: "unused", token: &oauth2.Token{}, tokenSource: staticTokenSource{err: rErr}}
	_, err := ts.Token()
	require.Error(t, err)
	assert.True(t, errors.Is(err, fs.ErrorAuthentication))
	assert.Contains(t, err.Error(), "invalid_grant")
}

func TestWrapOAuthError(t *testing.T) {
	plain := errors.New("network down")
	assert.Equal(t, plain, wrapOAuthError(plain))

	serverErr := &oauth2.RetrieveError{Response: &http.Response{StatusCode: http.StatusInternalServerError}}
	assert.Equal(t, error(serverErr), wrapOAuthError(serverErr))

	undecodable := &oauth2.RetrieveError{Response: &http.Response{StatusCode: http.StatusUnauthorized}, Body: []byte("nope")}
	assert.True(t, errors.Is(wrapOAuthError(undecodable), fs.ErrorAuthentication))

	client := &oauth2.RetrieveError{Response: &http.Response{StatusCode: http.StatusBadRequest}, Body: []byte(`{"error":"invalid_client"}`)}
	err := wrapOAuthError(client)
	assert.True(t, errors.Is(err, fs.ErrorAuthentication))
	assert.Contains(t, err.Error(), "client secrets")
}

func TestHandleAuth(t *testing.T) {
	for _, test := range []struct {
		query      string
		wantStatus int
		wantOK     bool
		wantName   string
	}{
		{"code=abc&state=good", http.StatusOK, true, ""},
		{"code=abc&state=bad", http.StatusBadRequest, false, "Auth state doesn't match"},
		{"state=good", http.StatusBadRequest, false, "Auth Error"},
		{"error=access_denied&state=good", http.StatusBadRequest, false, "Auth Error"},
	} {
		s := newAuthServer("127.0.0.1:0", "good", "https://example.com/consent")
		w := httptest.NewRecorder()
		s.handleAuth(w, httptest.NewRequest("GET", "/?"+test.query, nil))
		assert.Equal(t, test.wantStatus, w.Code, test.query)
		res := <-s.result
		assert.Equal(t, test.wantOK, res.OK, test.query)
		assert.Equal(t, test.wantName, res.Name, test.query)
		if test.wantOK {
			assert.Equal(t, "abc", res.Code)
			assert.Contains(t, w.Body.String(), "Success!")
		}
	}
}

func TestHandleRedirect(t *testing.T) {
	s := newAuthServer("127.0.0.1:0", "good", "https://example.com/consent")
	w := httptest.NewRecorder()
	s.handleRedirect(w, httptest.NewRequest("GET", "/auth?state=good", nil))
	assert.Equal(t, http.StatusTemporaryRedirect, w.Code)
	assert.Equal(t, "https://example.com/consent", w.Header().Get("Location"))

	w = httptest.NewRecorder()
	s.handleRedirect(w, httptest.NewRequest("GET", "/auth?state=bad", nil))
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestAuthorize(t *testing.T) {
	tokenServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		assert.NoError(t, req.ParseForm())
		assert.Equal(t, "the-code", req.Form.Get("code"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"tok","token_type":"Bearer","refresh_token":"ref","expires_in":3600}`))
	}))
	defer tokenServer.Close()

	config := &oauth2.Config{
		ClientID:     "id",
		ClientSecret: "secret",
		Endpoint: oauth2.Endpoint{
			AuthURL:  "https://example.com/consent",
			TokenURL: tokenServer.URL,
		},
	}
	opt := &Options{
		BindAddress: "127.0.0.1:0",
		OpenURL: func(authURL string) error {
			u, err := url.Parse(authURL)
			if err != nil {
				return err
			}
			state := u.Query().Get("state")
			// pretend the user consented and Google redirected back
			go func() {
				resp, err := http.Get("http://" + u.Host + "/?code=the-code&state=" + url.QueryEscape(state))
				if err == nil {
					_ = resp.Body.Close()
				}
			}()
			return nil
		},
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	token, err := Authorize(ctx, config, opt)
	require.NoError(t, err)
	assert.Equal(t, "tok", token.AccessToken)
	assert.Equal(t, "ref", token.RefreshToken)
}

func TestAuthorizeCancelled(t *testing.T) {
	config := &oauth2.Config{Endpoint: oauth2.Endpoint{AuthURL: "https://example.com/consent"}}
	ctx, cancel := context.WithCancel(context.Background())
	opt := &Options{
		BindAddress: "127.0.0.1:0",
		OpenURL: func(authURL string) error {
			assert.True(t, strings.Contains(authURL, "/auth?state="))
			cancel()
			return nil
		},
	}
	_, err := Authorize(ctx, config, opt)
	assert.Equal(t, context.Canceled, err)
}
