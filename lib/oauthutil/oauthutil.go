// Package oauthutil runs the OAuth consent flow for remotes which
// need one and keeps the resulting token on disk.
package oauthutil

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"html/template"
	"io/ioutil"
	"net"
	"net/http"
	"os"
	"sync"

	"github.com/pkg/errors"
	"github.com/safearchive/safearchive/fs"
	"github.com/skratchdot/open-golang/open"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

const (
	// bindPort is the port that we bind the local webserver to
	bindPort = "53682"

	// bindAddress is binding for local webserver when active
	bindAddress = "127.0.0.1:" + bindPort

	// RedirectURL is redirect to local webserver when active
	RedirectURL = "http://" + bindAddress + "/"

	// authResponseTemplate is shown in the browser once the code arrives
	authResponseTemplate = `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>{{ if .OK }}Success!{{ else }}Failure!{{ end }}</title>
</head>
<body>
<h1>{{ if .OK }}Success!{{ else }}Failure!{{ end }}</h1>
<hr>
<pre style="width: 750px; white-space: pre-wrap;">
{{ if eq .OK false }}
Error: {{ .Name }}<br>
{{ if .Description }}Description: {{ .Description }}<br>{{ end }}
{{ else }}
All done. Please go back to SafeArchive.
{{ end }}
</pre>
</body>
</html>
`
)

var authResponse = template.Must(template.New("authResponse").Parse(authResponseTemplate))

// Options for the consent flow
type Options struct {
	NoBrowser   bool                   // If set print the URL instead of opening a browser
	BindAddress string                 // address for the local webserver, default 127.0.0.1:53682
	OpenURL     func(url string) error // opens the browser, default open.Start
}

func (opt *Options) bindAddress() string {
	if opt == nil || opt.BindAddress == "" {
		return bindAddress
	}
	return opt.BindAddress
}

// LoadConfig reads a Google "installed app" client secrets file.
//
// A missing file is reported as fs.ErrorMissingCredentialsConfig.
func LoadConfig(clientSecretsFile string, scopes ...string) (*oauth2.Config, error) {
	b, err := ioutil.ReadFile(clientSecretsFile)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fs.Categorize(fs.ErrorMissingCredentialsConfig, errors.Wrapf(err, "client secrets file %q", clientSecretsFile))
		}
		return nil, errors.Wrap(err, "couldn't read client secrets file")
	}
	config, err := google.ConfigFromJSON(b, scopes...)
	if err != nil {
		return nil, fs.Categorize(fs.ErrorMissingCredentialsConfig, errors.Wrapf(err, "bad client secrets file %q", clientSecretsFile))
	}
	config.RedirectURL = RedirectURL
	return config, nil
}

// ReadToken reads the token saved at path
func ReadToken(path string) (*oauth2.Token, error) {
	b, err := ioutil.ReadFile(path)
	if err != nil {
		return nil, err
	}
	token := new(oauth2.Token)
	if err := json.Unmarshal(b, token); err != nil {
		return nil, errors.Wrapf(err, "couldn't parse token file %q", path)
	}
	if token.AccessToken == "" && token.RefreshToken == "" {
		return nil, errors.Errorf("empty token in %q", path)
	}
	return token, nil
}

// WriteToken saves token at path readable only by the user
func WriteToken(path string, token *oauth2.Token) error {
	b, err := json.MarshalIndent(token, "", "  ")
	if err != nil {
		return err
	}
	if err := ioutil.WriteFile(path, b, 0600); err != nil {
		return errors.Wrap(err, "couldn't save token")
	}
	return nil
}

// TokenSource saves refreshed tokens back to the token file
type TokenSource struct {
	mu          sync.Mutex
	path        string
	token       *oauth2.Token
	tokenSource oauth2.TokenSource
}

// NewTokenSource makes a TokenSource refreshing token with config and
// storing changes at path
func NewTokenSource(ctx context.Context, config *oauth2.Config, token *oauth2.Token, path string) *TokenSource {
	return &TokenSource{
		path:        path,
		token:       token,
		tokenSource: config.TokenSource(ctx, token),
	}
}

// Token returns a valid token, refreshing it if needed.
//
// This saves the token in the token file if it has changed
func (ts *TokenSource) Token() (*oauth2.Token, error) {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	token, err := ts.tokenSource.Token()
	if err != nil {
		return nil, errors.Wrap(wrapOAuthError(err), "couldn't fetch token")
	}
	changed := token.AccessToken != ts.token.AccessToken || token.RefreshToken != ts.token.RefreshToken || !token.Expiry.Equal(ts.token.Expiry)
	ts.token = token
	if changed {
		fs.Debugf(nil, "Saving refreshed token to %q", ts.path)
		if err := WriteToken(ts.path, token); err != nil {
			return nil, err
		}
	}
	return token, nil
}

// Check interface satisfied
var _ oauth2.TokenSource = (*TokenSource)(nil)

type retrieveErrResponse struct {
	Error string `json:"error"`
}

// wrapOAuthError marks refusals from the token endpoint as
// authentication errors
func wrapOAuthError(err error) error {
	var rErr *oauth2.RetrieveError
	if !errors.As(err, &rErr) || rErr.Response == nil {
		return err
	}
	if rErr.Response.StatusCode != http.StatusBadRequest && rErr.Response.StatusCode != http.StatusUnauthorized {
		return err
	}
	var resp retrieveErrResponse
	if jsonErr := json.Unmarshal(rErr.Body, &resp); jsonErr != nil || resp.Error == "" {
		return fs.AuthenticationError(err)
	}
	suggestion := "token expired or revoked - delete the token file and authorize again"
	switch resp.Error {
	case "invalid_client", "unauthorized_client", "unsupported_grant_type", "invalid_scope":
		suggestion = "check the client secrets file is set up for an installed app"
	}
	return fs.AuthenticationError(errors.Errorf("%s: %s", resp.Error, suggestion))
}

// NewClient returns an http.Client authorized with the token at
// tokenFile, running the consent flow first if there isn't one.
func NewClient(ctx context.Context, config *oauth2.Config, tokenFile string, opt *Options) (*http.Client, *TokenSource, error) {
	token, err := ReadToken(tokenFile)
	if err != nil {
		fs.Debugf(nil, "No usable token in %q: %v", tokenFile, err)
		token, err = Authorize(ctx, config, opt)
		if err != nil {
			return nil, nil, err
		}
		if err := WriteToken(tokenFile, token); err != nil {
			return nil, nil, err
		}
	}
	ts := NewTokenSource(ctx, config, token, tokenFile)
	return oauth2.NewClient(ctx, ts), ts, nil
}

// randomState makes the state parameter for the auth URL
func randomState() (string, error) {
	b := make([]byte, 24)
	if _, err := rand.Read(b); err != nil {
		return "", errors.Wrap(err, "couldn't make auth state")
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// Authorize runs the consent flow: the user is sent to Google in a
// browser and the code comes back to a local webserver, where it is
// exchanged for a token.
func Authorize(ctx context.Context, config *oauth2.Config, opt *Options) (*oauth2.Token, error) {
	if opt == nil {
		opt = &Options{}
	}
	state, err := randomState()
	if err != nil {
		return nil, err
	}
	server := newAuthServer(opt.bindAddress(), state, config.AuthCodeURL(state, oauth2.AccessTypeOffline))
	if err := server.Init(); err != nil {
		return nil, errors.Wrap(err, "failed to start auth webserver")
	}
	go server.Serve()
	defer server.Stop()

	authURL := "http://" + server.listener.Addr().String() + "/auth?state=" + state
	openURL := opt.OpenURL
	if openURL == nil {
		openURL = open.Start
	}
	if opt.NoBrowser {
		fs.Logf(nil, "Please go to the following link: %s", authURL)
	} else {
		if err := openURL(authURL); err != nil {
			fs.Debugf(nil, "Failed to open browser: %v", err)
		}
		fs.Logf(nil, "If your browser doesn't open automatically go to the following link: %s", authURL)
	}
	fs.Logf(nil, "Log in and authorize SafeArchive for access to Google Drive")

	var auth *AuthResult
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case auth = <-server.result:
	}
	if !auth.OK || auth.Code == "" {
		return nil, fs.AuthenticationError(auth)
	}
	fs.Debugf(nil, "Got code")
	token, err := config.Exchange(ctx, auth.Code)
	if err != nil {
		return nil, errors.Wrap(wrapOAuthError(err), "failed to get token")
	}
	return token, nil
}

// AuthResult is returned from the web server after authorization
// success or failure
type AuthResult struct {
	OK          bool // Failure or Success?
	Name        string
	Description string
	Code        string
}

// Error satisfies the error interface so AuthResult can be used as an error
func (ar *AuthResult) Error() string {
	status := "Error"
	if ar.OK {
		status = "OK"
	}
	return fmt.Sprintf("%s: %s: %s", status, ar.Name, ar.Description)
}

// Local web server for collecting auth
type authServer struct {
	state       string
	listener    net.Listener
	bindAddress string
	authURL     string
	server      *http.Server
	result      chan *AuthResult
	once        sync.Once
}

// newAuthServer makes the webserver for collecting auth
func newAuthServer(bindAddress, state, authURL string) *authServer {
	return &authServer{
		state:       state,
		bindAddress: bindAddress,
		authURL:     authURL, // http://host/auth redirects to here
		result:      make(chan *AuthResult, 1),
	}
}

// Receive the auth request
func (s *authServer) handleAuth(w http.ResponseWriter, req *http.Request) {
	if req.URL.Path != "/" {
		fs.Debugf(nil, "Ignoring %s request on auth server to %q", req.Method, req.URL.Path)
		http.NotFound(w, req)
		return
	}
	fs.Debugf(nil, "Received %s request on auth server to %q", req.Method, req.URL.Path)

	// Reply with the response to the user and to the channel
	reply := func(status int, res *AuthResult) {
		w.Header().Set("Content-Type", "text/html")
		w.WriteHeader(status)
		if err := authResponse.Execute(w, res); err != nil {
			fs.Debugf(nil, "Could not execute template for web response: %v", err)
		}
		select {
		case s.result <- res:
		default:
			fs.Debugf(nil, "Ignoring extra auth response")
		}
	}

	if err := req.ParseForm(); err != nil {
		reply(http.StatusBadRequest, &AuthResult{
			Name:        "Parse form error",
			Description: err.Error(),
		})
		return
	}

	if errCode := req.Form.Get("error"); errCode != "" {
		reply(http.StatusBadRequest, &AuthResult{
			Name:        "Auth Error",
			Description: errCode,
		})
		return
	}

	code := req.Form.Get("code")
	if code == "" {
		reply(http.StatusBadRequest, &AuthResult{
			Name:        "Auth Error",
			Description: "No code returned by remote server",
		})
		return
	}

	if state := req.Form.Get("state"); state != s.state {
		reply(http.StatusBadRequest, &AuthResult{
			Name:        "Auth state doesn't match",
			Description: fmt.Sprintf("Expecting %q got %q", s.state, state),
		})
		return
	}

	reply(http.StatusOK, &AuthResult{
		OK:   true,
		Code: code,
	})
}

// handleRedirect sends the browser on to the provider's consent page
func (s *authServer) handleRedirect(w http.ResponseWriter, req *http.Request) {
	state := req.FormValue("state")
	if state != s.state {
		fs.Debugf(nil, "State did not match: want %q got %q", s.state, state)
		http.Error(w, "State did not match - please try again", http.StatusForbidden)
		return
	}
	fs.Debugf(nil, "Redirecting browser to: %s", s.authURL)
	http.Redirect(w, req, s.authURL, http.StatusTemporaryRedirect)
}

// Init gets the internal web server ready to receive the code
func (s *authServer) Init() error {
	fs.Debugf(nil, "Starting auth server on %s", s.bindAddress)
	mux := http.NewServeMux()
	s.server = &http.Server{
		Addr:    s.bindAddress,
		Handler: mux,
	}
	s.server.SetKeepAlivesEnabled(false)
	mux.HandleFunc("/auth", s.handleRedirect)
	mux.HandleFunc("/", s.handleAuth)

	var err error
	s.listener, err = net.Listen("tcp", s.bindAddress)
	return err
}

// Serve the auth server, doesn't return
func (s *authServer) Serve() {
	err := s.server.Serve(s.listener)
	fs.Debugf(nil, "Closed auth server with error: %v", err)
}

// Stop the auth server by closing its socket
func (s *authServer) Stop() {
	s.once.Do(func() {
		fs.Debugf(nil, "Closing auth server")
		_ = s.listener.Close()
		_ = s.server.Close()
	})
}
